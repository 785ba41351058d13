package ringhdr

//go:generate go tool stringer -type=State

// State enumerates the lifecycle states of a Handle, per spec.md §4.4.
type State int

const (
	// StateUnopened is a Handle with no associated segment.
	StateUnopened State = iota
	// StateRunning is an open handle where send/receive may block.
	StateRunning
	// StateStopped is an open handle where send/receive return immediately.
	StateStopped
)
