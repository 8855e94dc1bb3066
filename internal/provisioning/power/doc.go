// Package power brings every node into a netbootable state before imaging.
//
// Nodes already running Talos are reset and rebooted through the machine API;
// everything else gets a Wake-on-LAN magic packet. The phase then waits for
// the reset nodes to go dark and for all nodes to come back online. None of
// the waits are fatal: a node that never shows up surfaces later as an
// imaging workflow that does not complete.
package power
