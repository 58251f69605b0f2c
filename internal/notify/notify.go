// Package notify dispatches user-facing notification events. Delivery is
// fire-and-forget: a failed publish is logged by the caller and never rolls
// back an engine state change.
package notify

import "context"

const (
	EventTestAssigned  = "TEST_ASSIGNED"
	EventTestCompleted = "TEST_COMPLETED"
)

// Template parameter names understood by the downstream renderer.
const (
	ParamUserName    = "user_name"
	ParamTestName    = "test_name"
	ParamReferenceID = "reference_id"
)

type Notifier interface {
	Notify(ctx context.Context, event string, params map[string]string, userID string) error
}

// Noop drops every event. Used in offline mode and tests.
type Noop struct{}

func (Noop) Notify(context.Context, string, map[string]string, string) error { return nil }
