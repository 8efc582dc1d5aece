package types

// SessionState is the tagged lifecycle state of a recording session.
// Illegal transitions are unrepresentable: callers check CanTransitionTo
// before mutating, so stopping a never-started session is a no-op by
// construction rather than a flag check.
type SessionState string

const (
	SessionStateCreated  SessionState = "created"
	SessionStateStarting SessionState = "starting"
	SessionStateActive   SessionState = "active"
	SessionStateStopping SessionState = "stopping"
	SessionStateStopped  SessionState = "stopped"
	SessionStateFailed   SessionState = "failed"
)

var sessionTransitions = map[SessionState]map[SessionState]struct{}{
	SessionStateCreated: {
		SessionStateStarting: {},
	},
	SessionStateStarting: {
		SessionStateActive: {},
		SessionStateFailed: {},
	},
	SessionStateActive: {
		SessionStateStopping: {},
	},
	SessionStateStopping: {
		SessionStateStopped: {},
	},
	SessionStateStopped: {
		SessionStateStarting: {}, // Restart.
	},
	SessionStateFailed: {
		SessionStateStarting: {}, // Retry.
	},
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	allowed, ok := sessionTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// IsActive reports whether the session is fully started.
func (s SessionState) IsActive() bool {
	return s == SessionStateActive
}

// QueryState is the tagged lifecycle state of a polling query.
type QueryState string

const (
	QueryStateCreated QueryState = "created"
	QueryStateActive  QueryState = "active"
	QueryStateStopped QueryState = "stopped"
)

var queryTransitions = map[QueryState]map[QueryState]struct{}{
	QueryStateCreated: {
		QueryStateActive: {},
	},
	QueryStateActive: {
		QueryStateStopped: {},
	},
	QueryStateStopped: {
		QueryStateActive: {}, // Restart, used by callback chaining.
	},
}

// CanTransitionTo reports whether the query lifecycle allows moving to next.
func (s QueryState) CanTransitionTo(next QueryState) bool {
	allowed, ok := queryTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// IsActive reports whether the query's poll loop is running.
func (s QueryState) IsActive() bool {
	return s == QueryStateActive
}
