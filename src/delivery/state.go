package delivery

// State captures the outcome of one distribution-task invocation: Default,
// Success, Retried, Splitted, Timeout, Failed, or Skipped. A task starts in
// Default and performs exactly one transition per invocation.
type State int

const (
	// Default is the initial state of a distribution task.
	Default State = iota
	// Success means the full expected count was relayed.
	Success
	// Retried means nothing was sent; the task rotated to the next node.
	Retried
	// Splitted means a partial count was relayed; the remainder rotated to
	// the next node.
	Splitted
	// Timeout means the cycle deadline passed before anything was sent.
	Timeout
	// Failed means the task exhausted its attempts.
	Failed
	// Skipped means the task was acknowledged without sending, because the
	// peer is excluded or distribution is disabled.
	Skipped
)

// String ...
func (s State) String() string {
	switch s {
	case Default:
		return "DEFAULT"
	case Success:
		return "SUCCESS"
	case Retried:
		return "RETRIED"
	case Splitted:
		return "SPLITTED"
	case Timeout:
		return "TIMEOUT"
	case Failed:
		return "FAILED"
	case Skipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}
