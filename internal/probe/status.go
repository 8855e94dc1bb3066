package probe

// Status is the liveness of a node as seen by one probe.
type Status int

// Node statuses, ordered from least to most alive.
const (
	Offline Status = iota
	OnlineUnknownOS
	OnlineTargetRuntime
)

func (s Status) String() string {
	switch s {
	case OnlineTargetRuntime:
		return "online-target-runtime"
	case OnlineUnknownOS:
		return "online-unknown-os"
	default:
		return "offline"
	}
}

// Short returns a one-character marker used in compact status lines.
func (s Status) Short() string {
	switch s {
	case OnlineTargetRuntime:
		return "T"
	case OnlineUnknownOS:
		return "U"
	default:
		return "-"
	}
}

// Online reports whether the node answered at all.
func (s Status) Online() bool {
	return s != Offline
}
