package authui

import (
	"context"
	"errors"
	"time"
)

// ActivityEventType enumerates the signals emitted by the flows.
type ActivityEventType string

const (
	ActivityEventChangedPassword  ActivityEventType = "user.changed_password"
	ActivityEventChangedUsername  ActivityEventType = "user.changed_username"
	ActivityEventChangedEmail     ActivityEventType = "user.changed_email"
	ActivityEventConfirmedAccount ActivityEventType = "user.confirmed_account"
	ActivityEventWelcome          ActivityEventType = "user.welcome"
	ActivityEventForgotPassword   ActivityEventType = "user.forgot_password"
	ActivityEventLoggedIn         ActivityEventType = "user.logged_in"
	ActivityEventLoggedOut        ActivityEventType = "user.logged_out"
	ActivityEventRegistered       ActivityEventType = "user.registered"
	ActivityEventResetPassword    ActivityEventType = "user.reset_password"
)

// ActorRef identifies who triggered an event
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
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

// MultiSink fans events out to every sink
type MultiSink []ActivitySink

// Record implements ActivitySink. Every sink is called even if one fails.
func (m MultiSink) Record(ctx context.Context, event ActivityEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
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

// emitter sends events without failing the flow that triggered them
type emitter struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

func newEmitter(sink ActivitySink, logger Logger) *emitter {
	return &emitter{
		sink:   normalizeActivitySink(sink),
		logger: normalizeLogger(logger),
		now:    time.Now,
	}
}

func (e *emitter) emit(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: e.now().UTC(),
	}

	if user != nil {
		event.UserID = user.ID.String()
		event.Actor = ActorRef{ID: event.UserID, Type: "user"}
	}

	if err := e.sink.Record(ctx, event); err != nil {
		e.logger.Warn("activity sink failed", "event", string(eventType), "user_id", event.UserID, "error", err)
	}
}
