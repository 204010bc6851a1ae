package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatbot-auth/internal/event"
	"chatbot-auth/internal/model"
)

type mockAuditStore struct {
	mock.Mock
}

func (m *mockAuditStore) Log(ctx context.Context, e model.AuthEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockAuditStore) ListForIdentity(ctx context.Context, identityID string, limit int) ([]model.AuthEvent, error) {
	args := m.Called(ctx, identityID, limit)
	events, _ := args.Get(0).([]model.AuthEvent)
	return events, args.Error(1)
}

func TestAuditService_RunPersistsEvents(t *testing.T) {
	store := &mockAuditStore{}
	persisted := make(chan model.AuthEvent, 128)
	store.On("Log", mock.Anything, mock.MatchedBy(func(e model.AuthEvent) bool {
		return e.Type == string(event.TypeSessionReuseDetected)
	})).Run(func(args mock.Arguments) {
		persisted <- args.Get(1).(model.AuthEvent)
	}).Return(nil)

	bus := event.NewBus()
	svc := NewAuditService(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, bus)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.Publish(event.Event{Type: event.TypeSessionReuseDetected, IdentityID: "user-1", SessionID: "sess-1", ClientIP: "10.0.0.1"})
		select {
		case e := <-persisted:
			assert.Equal(t, "user-1", e.IdentityID)
			assert.Equal(t, "10.0.0.1", e.ClientIP)
			assert.NotEmpty(t, e.ID)
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestAuditService_HandleLogsStoreFailure(t *testing.T) {
	store := &mockAuditStore{}
	store.On("Log", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	svc := NewAuditService(store, nil)
	svc.Handle(context.Background(), event.Event{ID: "evt-1", Type: event.TypeLoginFailed, Timestamp: time.Now()})

	store.AssertExpectations(t)
}

func TestAuditService_ListForIdentity(t *testing.T) {
	store := &mockAuditStore{}
	want := []model.AuthEvent{{ID: "evt-1", Type: string(event.TypeSessionCreated), IdentityID: "user-1"}}
	store.On("ListForIdentity", mock.Anything, "user-1", 20).Return(want, nil)
	store.On("ListForIdentity", mock.Anything, "user-2", 20).Return(nil, context.DeadlineExceeded)

	svc := NewAuditService(store, nil)

	got, err := svc.ListForIdentity(context.Background(), "user-1", 20)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = svc.ListForIdentity(context.Background(), "user-2", 20)
	assert.ErrorIs(t, err, model.ErrUnavailable)
}
