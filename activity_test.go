package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/qcdash/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLogListOrderAndFilters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	log := svc.Repo.Activity()

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	events := []auth.ActivityEvent{
		{EventType: auth.ActivityEventLoginSuccess, SubjectID: "a-1", OccurredAt: base},
		{EventType: auth.ActivityEventLoginFailure, SubjectID: "a-2", OccurredAt: base.Add(time.Minute)},
		{EventType: auth.ActivityEventSessionEnded, SubjectID: "a-1", OccurredAt: base.Add(2 * time.Minute),
			Actor: auth.ActorRef{Type: "system"}, Metadata: map[string]any{"reason": "timeout"}},
	}
	for _, evt := range events {
		require.NoError(t, log.Record(ctx, evt))
	}

	all, err := log.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, string(auth.ActivityEventSessionEnded), all[0].EventType)
	assert.Equal(t, string(auth.ActivityEventLoginFailure), all[1].EventType)
	assert.Equal(t, string(auth.ActivityEventLoginSuccess), all[2].EventType)
	assert.Equal(t, "system", all[0].ActorType)
	assert.Equal(t, "timeout", all[0].Metadata["reason"])
	assert.Nil(t, all[2].Metadata)

	latest, err := log.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, all[0].ID, latest[0].ID)

	subject, err := log.List(ctx, "a-1", 0)
	require.NoError(t, err)
	require.Len(t, subject, 2)
	for _, r := range subject {
		assert.Equal(t, "a-1", r.SubjectID)
	}
	assert.True(t, base.Add(2*time.Minute).Equal(subject[0].OccurredAt))
}

func TestActivityLogSameInstantKeepsInsertOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	log := svc.Repo.Activity()

	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, log.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess, SubjectID: "a-1", OccurredAt: at}))
	require.NoError(t, log.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventSessionEnded, SubjectID: "a-1", OccurredAt: at}))

	records, err := log.List(ctx, "a-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, string(auth.ActivityEventSessionEnded), records[0].EventType)
	assert.Greater(t, records[0].ID, records[1].ID)
}

func TestActivitySinkFunc(t *testing.T) {
	var got auth.ActivityEvent
	sink := auth.ActivitySinkFunc(func(_ context.Context, evt auth.ActivityEvent) error {
		got = evt
		return nil
	})

	require.NoError(t, sink.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess, SubjectID: "a-1"}))
	assert.Equal(t, "a-1", got.SubjectID)
}
