package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess     ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure     ActivityEventType = "auth.login.failure"
	ActivityEventUserRegistered   ActivityEventType = "user.registered"
	ActivityEventUserDeactivated  ActivityEventType = "user.deactivated"
	ActivityEventUserStateChanged ActivityEventType = "user.state.changed"
	ActivityEventRoleAssigned     ActivityEventType = "membership.assigned"
	ActivityEventRoleRevoked      ActivityEventType = "membership.revoked"
	ActivityEventRoleCreated      ActivityEventType = "role.created"
	ActivityEventRoleUpdated      ActivityEventType = "role.updated"
	ActivityEventRoleDeleted      ActivityEventType = "role.deleted"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType `json:"event_type"`
	Actor      string            `json:"actor,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	RoleID     string            `json:"role_id,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// emitActivity records the event, failures are only logged
func emitActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Actor == "" {
		if p, ok := PrincipalFrom(ctx); ok {
			event.Actor = p.Subject
		}
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed to record event", "event", event.EventType, "error", err)
	}
}
