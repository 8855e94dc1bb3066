// Package poll implements the poll-until loop shared by every phase.
//
// Physical machines expose no event stream, so each phase repeatedly probes
// external state and decides from the observation whether it is done, has
// failed, has stopped making progress or has run out of time. [Until]
// returns that decision as a tagged [Outcome] instead of an error so that
// callers can treat timeouts as warnings where a partial result is
// acceptable.
package poll
