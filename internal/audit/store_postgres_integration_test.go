//go:build integration

package audit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crediflow/internal/audit"
	"crediflow/pkg/testutil/containers"
)

func TestPostgresAuditStore(t *testing.T) {
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t, filepath.Join("..", "..", "migrations", "001_init.sql"))
	store := audit.NewPostgres(pg.DB)

	appID := uuid.New()
	newEvent := func(action audit.Action, at time.Time) audit.Event {
		event := audit.NewEvent(action, at)
		event.ApplicationID = appID.String()
		event.Actor = "analyst"
		return event
	}

	t.Run("append is idempotent on the event id", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx, "application_events", "outbox"))

		event := newEvent(audit.ActionApplicationCreated, time.Now().UTC().Truncate(time.Microsecond))
		require.NoError(t, store.Append(ctx, event))
		require.NoError(t, store.Append(ctx, event))

		events, err := store.ListByApplication(ctx, appID)
		require.NoError(t, err)
		assert.Len(t, events, 1)

		entries, err := store.FetchUnpublished(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("lists newest first", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx, "application_events", "outbox"))

		base := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, store.Append(ctx, newEvent(audit.ActionApplicationCreated, base)))
		require.NoError(t, store.Append(ctx, newEvent(audit.ActionStatusChanged, base.Add(time.Second))))

		events, err := store.ListByApplication(ctx, appID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, audit.ActionStatusChanged, events[0].Action)

		recent, err := store.ListRecent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, audit.ActionStatusChanged, recent[0].Action)
	})

	t.Run("events without an application id survive the round-trip", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx, "application_events", "outbox"))

		event := audit.NewEvent(audit.ActionLoginFailed, time.Now().UTC().Truncate(time.Microsecond))
		event.Actor = "nobody@credit.com"
		require.NoError(t, store.Append(ctx, event))

		recent, err := store.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Empty(t, recent[0].ApplicationID)
		assert.Equal(t, "nobody@credit.com", recent[0].Actor)
	})
}
