package txn

// LifecycleState is one of the states a transaction handle passes through.
type LifecycleState int

const (
	Initializing LifecycleState = iota
	Queued
	Holding
	Executing
	WaitingRemote
	Finished
	Aborted
)

func (s LifecycleState) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case Queued:
		return "QUEUED"
	case Holding:
		return "HOLDING"
	case Executing:
		return "EXECUTING"
	case WaitingRemote:
		return "WAITING_REMOTE"
	case Finished:
		return "FINISHED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}
