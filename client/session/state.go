package session

// State tracks one request through the authentication flow.
type State int

const (
	StateUnauthenticated State = iota
	StateAttached
	StateRefreshing
	StateRetried
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAttached:
		return "attached"
	case StateRefreshing:
		return "refreshing"
	case StateRetried:
		return "retried"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
