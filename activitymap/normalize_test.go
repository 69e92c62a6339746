package activitymap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	auth "github.com/carely/go-auth"
	"github.com/carely/go-auth/activitymap"
)

func TestNormalizeUserEvent(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventUserStateChanged,
		Actor:      "admin@example.com",
		UserID:     "user-100",
		Metadata:   map[string]any{"state": "BUSY"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "admin@example.com", out.ActorID)
	assert.Equal(t, "user.state.changed", out.Verb)
	assert.Equal(t, activitymap.ObjectTypeUser, out.ObjectType)
	assert.Equal(t, "user-100", out.ObjectID)
	assert.Equal(t, "auth", out.Channel)
	assert.Equal(t, "BUSY", out.Metadata["state"])
	assert.Equal(t, ts, out.OccurredAt)
}

func TestNormalizeMembershipEvent(t *testing.T) {
	t.Parallel()

	event := auth.ActivityEvent{
		EventType: auth.ActivityEventRoleAssigned,
		UserID:    "user-1",
		RoleID:    "role-1",
		Metadata:  map[string]any{"role": "CARER"},
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, activitymap.ObjectTypeMembership, out.ObjectType)
	assert.Equal(t, "user-1", out.ObjectID)
	assert.Equal(t, "user-1", out.ActorID)
	assert.Equal(t, "role-1", out.Metadata[activitymap.MetadataKeyRoleID])
	assert.Equal(t, "CARER", out.Metadata["role"])
	assert.False(t, out.OccurredAt.IsZero())

	_, mutated := event.Metadata[activitymap.MetadataKeyRoleID]
	assert.False(t, mutated)
}

func TestNormalizeRoleEvent(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(auth.ActivityEvent{
		EventType: auth.ActivityEventRoleDeleted,
		RoleID:    "role-9",
	})

	assert.Equal(t, activitymap.ObjectTypeRole, out.ObjectType)
	assert.Equal(t, "role-9", out.ObjectID)
	assert.Equal(t, "system", out.ActorID)
	assert.Nil(t, out.Metadata)
}

func TestNormalizeOptions(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(
		auth.ActivityEvent{EventType: auth.ActivityEventRoleCreated},
		activitymap.WithDefaultChannel("audit"),
		activitymap.WithActorFallback("bootstrap"),
	)

	assert.Equal(t, "audit", out.Channel)
	assert.Equal(t, "bootstrap", out.ActorID)
}

func TestObjectTypeFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, activitymap.ObjectTypeUser, activitymap.ObjectTypeFor(auth.ActivityEventLoginFailure))
	assert.Equal(t, activitymap.ObjectTypeUser, activitymap.ObjectTypeFor(auth.ActivityEventUserRegistered))
	assert.Equal(t, activitymap.ObjectTypeRole, activitymap.ObjectTypeFor(auth.ActivityEventRoleUpdated))
	assert.Equal(t, activitymap.ObjectTypeMembership, activitymap.ObjectTypeFor(auth.ActivityEventRoleRevoked))
}
