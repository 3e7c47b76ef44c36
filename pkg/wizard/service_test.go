package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Noona-Project/noona-warden/pkg/errdefs"
	"github.com/The-Noona-Project/noona-warden/pkg/log"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true})
}

// memStore is an in-memory Store with scriptable failures
type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.data[key], nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func newTestService(store Store) *Service {
	s := NewService(store)
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestLoadState_SynthesizesDefault(t *testing.T) {
	s := newTestService(newMemStore())

	state, err := s.LoadState(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.WizardVersion, state.Version)
	assert.False(t, state.Completed)
	require.NotNil(t, state.UpdatedAt)
	for _, key := range types.StepOrder {
		step := state.Step(key)
		require.NotNil(t, step, key)
		assert.Equal(t, types.StepPending, step.Status)
		assert.Empty(t, step.Timeline)
	}
}

func TestLoadState_AcceptsVersion1(t *testing.T) {
	store := newMemStore()
	store.data[DefaultStateKey] = []byte(`{"version":1,"foundation":{"status":"complete","completedAt":"2026-01-01T00:00:00Z"}}`)

	s := newTestService(store)
	state, err := s.LoadState(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, state.Version, "version 1 documents pass through untranslated")
	assert.Equal(t, types.StepComplete, state.Foundation.Status)
	assert.Equal(t, types.StepPending, state.Portal.Status, "missing steps default to pending")
}

func TestLoadState_ServesLastKnownOnOutage(t *testing.T) {
	store := newMemStore()
	s := newTestService(store)

	first, err := s.LoadState(context.Background())
	require.NoError(t, err)

	store.getErr = errors.New("connection refused")
	again, err := s.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)
}

func TestLoadState_OutageWithNoCache(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")

	s := newTestService(store)
	_, err := s.LoadState(context.Background())
	assert.Error(t, err)
}

func TestApplyUpdates_PartialUpdate(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	initial, err := s.LoadState(ctx)
	require.NoError(t, err)

	var update types.StepUpdate
	require.NoError(t, json.Unmarshal(
		[]byte(`{"step":"portal","status":"in-progress","detail":"validating"}`), &update))

	state, err := s.ApplyUpdates(ctx, []types.StepUpdate{update})
	require.NoError(t, err)

	assert.Equal(t, types.StepInProgress, state.Portal.Status)
	require.NotNil(t, state.Portal.Detail)
	assert.Equal(t, "validating", *state.Portal.Detail)
	assert.Nil(t, state.Portal.CompletedAt)
	assert.Equal(t, types.StepPending, state.Foundation.Status, "other steps unchanged")
	assert.Equal(t, types.StepPending, state.Raven.Status)
	assert.True(t, state.UpdatedAt.After(*initial.UpdatedAt))
}

func TestApplyUpdates_CompleteStampsTimestamp(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	status := types.StepComplete
	state, err := s.ApplyUpdates(ctx, []types.StepUpdate{{Step: types.StepFoundation, Status: &status}})
	require.NoError(t, err)
	require.NotNil(t, state.Foundation.CompletedAt, "complete without completedAt stamps now")

	pending := types.StepPending
	state, err = s.ApplyUpdates(ctx, []types.StepUpdate{{Step: types.StepFoundation, Status: &pending}})
	require.NoError(t, err)
	assert.Nil(t, state.Foundation.CompletedAt, "leaving complete clears completedAt")
}

func TestApplyUpdates_ExplicitNullClears(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	var set types.StepUpdate
	require.NoError(t, json.Unmarshal(
		[]byte(`{"step":"raven","detail":"syncing","error":"boom"}`), &set))
	_, err := s.ApplyUpdates(ctx, []types.StepUpdate{set})
	require.NoError(t, err)

	var clear types.StepUpdate
	require.NoError(t, json.Unmarshal(
		[]byte(`{"step":"raven","detail":null,"error":null}`), &clear))
	state, err := s.ApplyUpdates(ctx, []types.StepUpdate{clear})
	require.NoError(t, err)

	assert.Nil(t, state.Raven.Detail)
	assert.Nil(t, state.Raven.Error)
}

func TestApplyUpdates_UnknownStep(t *testing.T) {
	s := newTestService(newMemStore())

	_, err := s.ApplyUpdates(context.Background(), []types.StepUpdate{{Step: "ghost"}})
	assert.True(t, errdefs.IsNotFound(err))
}

func TestApplyUpdates_RetriesSetAbsolutely(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	five := 5
	state, err := s.ApplyUpdates(ctx, []types.StepUpdate{{Step: types.StepPortal, Retries: &five}})
	require.NoError(t, err)
	assert.Equal(t, 5, state.Portal.Retries)

	two := 2
	state, err = s.ApplyUpdates(ctx, []types.StepUpdate{{Step: types.StepPortal, Retries: &two}})
	require.NoError(t, err)
	assert.Equal(t, 2, state.Portal.Retries, "retries is not auto-incremented")
}

func TestRecordBroadcast_TrimsTimeline(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	for i := 1; i <= 101; i++ {
		_, _, err := s.RecordBroadcast(ctx, types.StepRaven, BroadcastRequest{
			Message: fmt.Sprintf("event %d", i),
			Limit:   100,
		})
		require.NoError(t, err)
	}

	state, err := s.LoadState(ctx)
	require.NoError(t, err)

	timeline := state.Raven.Timeline
	require.Len(t, timeline, 100)
	assert.Equal(t, "event 2", timeline[0].Message, "oldest event trimmed")
	assert.Equal(t, "event 101", timeline[99].Message)
}

func TestRecordBroadcast_CallerLimitOverridesConfiguredCap(t *testing.T) {
	s := NewService(newMemStore(), WithTimelineLimit(5))
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		_, _, err := s.RecordBroadcast(ctx, types.StepRaven, BroadcastRequest{
			Message: fmt.Sprintf("event %d", i),
			Limit:   8,
		})
		require.NoError(t, err)
	}

	state, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, state.Raven.Timeline, 8, "caller limit above the default cap is honored")

	// A smaller caller limit trims down on the next append.
	_, _, err = s.RecordBroadcast(ctx, types.StepRaven, BroadcastRequest{
		Message: "event 9",
		Limit:   3,
	})
	require.NoError(t, err)

	state, err = s.LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, state.Raven.Timeline, 3)
	assert.Equal(t, "event 9", state.Raven.Timeline[2].Message)
}

func TestResetStep_CallerLimitTrims(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, _, err := s.RecordBroadcast(ctx, types.StepPortal, BroadcastRequest{
			Message: fmt.Sprintf("event %d", i),
		})
		require.NoError(t, err)
	}

	state, err := s.ResetStep(ctx, types.StepPortal, ResetPayload{Limit: 2})
	require.NoError(t, err)

	timeline := state.Portal.Timeline
	require.Len(t, timeline, 2)
	assert.Equal(t, "reset", timeline[1].Code, "reset event is the newest entry")
}

func TestRecordBroadcast_UpdatesStatusInSameWrite(t *testing.T) {
	s := newTestService(newMemStore())

	status := types.StepInProgress
	state, event, err := s.RecordBroadcast(context.Background(), types.StepPortal, BroadcastRequest{
		Message: "linking discord",
		Status:  &status,
		Actor:   &types.Actor{ID: "user-1", Type: "user"},
	})
	require.NoError(t, err)

	assert.Equal(t, types.StepInProgress, state.Portal.Status)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, types.StepInProgress, event.Status)
	require.Len(t, state.Portal.Timeline, 1)
}

func TestRecordBroadcast_RequiresMessage(t *testing.T) {
	s := newTestService(newMemStore())

	_, _, err := s.RecordBroadcast(context.Background(), types.StepPortal, BroadcastRequest{})
	assert.True(t, errdefs.IsValidation(err))
}

func TestResetStep(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	status := types.StepError
	msg := "install failed"
	_, err := s.ApplyUpdates(ctx, []types.StepUpdate{{
		Step: types.StepFoundation, Status: &status, Error: &msg, ErrorSet: true,
	}})
	require.NoError(t, err)

	state, err := s.ResetStep(ctx, types.StepFoundation, ResetPayload{
		Message: "Retrying foundation",
		Actor:   &types.Actor{ID: "user-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, types.StepPending, state.Foundation.Status)
	assert.Nil(t, state.Foundation.Error)
	assert.Nil(t, state.Foundation.CompletedAt)
	require.NotEmpty(t, state.Foundation.Timeline)
	last := state.Foundation.Timeline[len(state.Foundation.Timeline)-1]
	assert.Equal(t, "Retrying foundation", last.Message)
	assert.Equal(t, "reset", last.Code)
}

func TestResolveOperation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType string
		wantErr  bool
	}{
		{
			name:     "replace shape",
			body:     `{"state":{"version":2}}`,
			wantType: "replace",
		},
		{
			name:     "update shape",
			body:     `{"updates":[{"step":"portal","status":"in-progress"}]}`,
			wantType: "update",
		},
		{
			name:    "neither shape",
			body:    `{"foo":1}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			body:    `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := ResolveOperation([]byte(tt.body))
			if tt.wantErr {
				assert.True(t, errdefs.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, op.Type)
		})
	}
}

func TestBeginInstall_MarksParticipatingSteps(t *testing.T) {
	s := newTestService(newMemStore())

	state, err := s.BeginInstall(context.Background(), map[types.StepKey]bool{
		types.StepFoundation: true,
		types.StepRaven:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, types.StepInProgress, state.Foundation.Status)
	assert.Equal(t, types.StepSkipped, state.Portal.Status)
	assert.Equal(t, types.StepPending, state.Raven.Status)
	assert.Equal(t, types.StepPending, state.Verification.Status)
}

func TestSetStepStatus_PromotesNextPending(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	_, err := s.BeginInstall(ctx, map[types.StepKey]bool{
		types.StepFoundation: true,
		types.StepPortal:     true,
	})
	require.NoError(t, err)

	state, err := s.SetStepStatus(ctx, types.StepFoundation, types.StepComplete, "")
	require.NoError(t, err)

	assert.Equal(t, types.StepComplete, state.Foundation.Status)
	assert.NotNil(t, state.Foundation.CompletedAt)
	assert.Equal(t, types.StepInProgress, state.Portal.Status, "next pending step promoted")
}

func TestCompleteInstall(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	state, err := s.CompleteInstall(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, types.StepComplete, state.Verification.Status)
	assert.NotNil(t, state.Verification.CompletedAt)

	state, err = s.CompleteInstall(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, types.StepError, state.Verification.Status)
	require.NotNil(t, state.Verification.Error)
	assert.False(t, state.Completed)
}

func TestCompletedInvariant(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	complete := types.StepComplete
	skipped := types.StepSkipped
	state, err := s.ApplyUpdates(ctx, []types.StepUpdate{
		{Step: types.StepFoundation, Status: &complete},
		{Step: types.StepPortal, Status: &skipped},
		{Step: types.StepRaven, Status: &skipped},
	})
	require.NoError(t, err)
	assert.False(t, state.Completed, "verification still pending")

	state, err = s.ApplyUpdates(ctx, []types.StepUpdate{
		{Step: types.StepVerification, Status: &complete},
	})
	require.NoError(t, err)
	assert.True(t, state.Completed, "all steps complete or skipped")
}

func TestWriteState_KeepsInMemoryCopyOnFailure(t *testing.T) {
	store := newMemStore()
	s := newTestService(store)
	ctx := context.Background()

	_, err := s.LoadState(ctx)
	require.NoError(t, err)

	store.setErr = errors.New("write refused")
	status := types.StepInProgress
	_, err = s.ApplyUpdates(ctx, []types.StepUpdate{{Step: types.StepFoundation, Status: &status}})
	require.Error(t, err)

	store.getErr = errors.New("read refused")
	state, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StepInProgress, state.Foundation.Status,
		"intended state served from memory after store failure")
}

func TestStepHistory(t *testing.T) {
	s := newTestService(newMemStore())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, _, err := s.RecordBroadcast(ctx, types.StepFoundation, BroadcastRequest{
			Message: fmt.Sprintf("event %d", i),
		})
		require.NoError(t, err)
	}

	events, err := s.StepHistory(ctx, types.StepFoundation, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "event 4", events[0].Message)
	assert.Equal(t, "event 5", events[1].Message)

	_, err = s.StepHistory(ctx, "ghost", 0)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestMetadata(t *testing.T) {
	steps, features := Metadata()
	require.Len(t, steps, 4)
	assert.Equal(t, types.StepFoundation, steps[0].ID)
	assert.Equal(t, types.StepVerification, steps[3].ID)
	assert.True(t, features["broadcast"])
}
