package activitymap

import (
	"strings"
	"time"

	auth "github.com/carely/go-auth"
)

const (
	// MetadataKeyRoleID carries the role of membership events, whose object is the user
	MetadataKeyRoleID = "role_id"

	ObjectTypeUser       = "user"
	ObjectTypeRole       = "role"
	ObjectTypeMembership = "membership"
)

const (
	defaultChannel = "auth"
	defaultActorID = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
}

// Normalize converts an auth.ActivityEvent into a generic normalized shape.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	objectType := ObjectTypeFor(event.EventType)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID(event, objectType),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event, objectType),
		OccurredAt: occurredAt,
	}
}

// ObjectTypeFor derives the object kind from the event prefix
func ObjectTypeFor(eventType auth.ActivityEventType) string {
	prefix, _, _ := strings.Cut(string(eventType), ".")
	switch prefix {
	case ObjectTypeRole:
		return ObjectTypeRole
	case ObjectTypeMembership:
		return ObjectTypeMembership
	default:
		return ObjectTypeUser
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if channel = strings.TrimSpace(channel); channel != "" {
			opts.channel = channel
		}
	}
}

// WithActorFallback sets the actor id used when the event has no actor or user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func objectID(event auth.ActivityEvent, objectType string) string {
	if objectType == ObjectTypeRole {
		return strings.TrimSpace(event.RoleID)
	}
	return strings.TrimSpace(event.UserID)
}

func normalizeMetadata(event auth.ActivityEvent, objectType string) map[string]any {
	metadata := cloneMap(event.Metadata)

	if objectType == ObjectTypeMembership && event.RoleID != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyRoleID] = event.RoleID
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
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
