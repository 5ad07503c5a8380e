// Package activitymap flattens the signals of the auth UI into records
// that queues, audit tables or log pipelines can store as is.
package activitymap

import (
	"context"
	"maps"
	"strings"
	"time"

	authui "github.com/goliatone/go-auth-ui"
)

// MetadataKeyActorType holds authui.ActorRef.Type
const MetadataKeyActorType = "actor_type"

const (
	defaultChannel    = "auth_ui"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
)

// Record is the flat shape of a signal
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback is used when the event has no actor nor user
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the time used for events without OccurredAt
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Normalize converts a signal into a Record. The verb drops the "user."
// namespace of the event type, "user.logged_in" becomes "logged_in".
func Normalize(event authui.ActivityEvent, opts ...Option) Record {
	o := buildOptions(opts)
	return normalize(event, o)
}

func normalize(event authui.ActivityEvent, o options) Record {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}

	return Record{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			o.actorFallback,
		),
		Verb:       strings.TrimPrefix(string(event.EventType), "user."),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// Sink returns an authui.ActivitySink that hands normalized records to fn
func Sink(fn func(ctx context.Context, record Record) error, opts ...Option) authui.ActivitySink {
	o := buildOptions(opts)
	return authui.ActivitySinkFunc(func(ctx context.Context, event authui.ActivityEvent) error {
		if fn == nil {
			return nil
		}
		return fn(ctx, normalize(event, o))
	})
}

func metadata(event authui.ActivityEvent) map[string]any {
	var out map[string]any
	if len(event.Metadata) > 0 {
		out = maps.Clone(event.Metadata)
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if out == nil {
			out = map[string]any{}
		}
		if _, ok := out[MetadataKeyActorType]; !ok {
			out[MetadataKeyActorType] = actorType
		}
	}

	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
