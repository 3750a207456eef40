package chat_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aimerfeng/SkillExchange/internal/chat"
	"github.com/aimerfeng/SkillExchange/internal/config"
	apierrors "github.com/aimerfeng/SkillExchange/internal/errors"
	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/aimerfeng/SkillExchange/internal/store/memory"
	"github.com/aimerfeng/SkillExchange/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc              *chat.Service
	stores           *store.Stores
	sender, receiver *models.User
	outsider         *models.User
	request          *models.ExchangeRequest
}

func setup(t *testing.T, status models.RequestStatus) *fixture {
	t.Helper()
	stores := memory.New().Stores()
	f := &fixture{
		svc:      chat.NewService(stores, &config.LimitsConfig{MaxMessageLen: 500}),
		stores:   stores,
		sender:   storetest.CreateUser(t, stores, "Alice", "Guitar"),
		receiver: storetest.CreateUser(t, stores, "Bob", "Python"),
		outsider: storetest.CreateUser(t, stores, "Carol", "Cooking"),
	}
	f.request = &models.ExchangeRequest{
		SenderID:       f.sender.ID,
		ReceiverID:     f.receiver.ID,
		SkillOffered:   "Guitar",
		SkillRequested: "Python",
		Status:         status,
	}
	require.NoError(t, stores.Requests.Create(context.Background(), f.request))
	return f
}

func TestSend_GatedByStatus(t *testing.T) {
	tests := []struct {
		status  models.RequestStatus
		allowed bool
	}{
		{models.RequestStatusPending, false},
		{models.RequestStatusRejected, false},
		{models.RequestStatusAccepted, true},
		{models.RequestStatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := setup(t, tt.status)
			msg, err := f.svc.Send(context.Background(), f.request.ID, f.sender.ID, "hello")
			if !tt.allowed {
				assert.ErrorIs(t, err, chat.ErrNotConversable)
				assert.Equal(t, apierrors.KindInvalidState, apierrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, f.receiver.ID, msg.ReceiverID)
			assert.Equal(t, "Alice", msg.Sender.Name)
			assert.Equal(t, "Bob", msg.Receiver.Name)
		})
	}
}

func TestSend_ReceiverIsCounterpart(t *testing.T) {
	f := setup(t, models.RequestStatusAccepted)
	msg, err := f.svc.Send(context.Background(), f.request.ID, f.receiver.ID, "  reply  ")
	require.NoError(t, err)
	assert.Equal(t, f.sender.ID, msg.ReceiverID)
	assert.Equal(t, "reply", msg.Body)
}

func TestSend_CheckOrder(t *testing.T) {
	f := setup(t, models.RequestStatusPending)
	ctx := context.Background()

	// body validation comes before lookups
	_, err := f.svc.Send(ctx, uuid.New(), f.outsider.ID, "   ")
	assert.ErrorIs(t, err, chat.ErrInvalidInput)

	_, err = f.svc.Send(ctx, uuid.New(), f.outsider.ID, "hi")
	assert.ErrorIs(t, err, chat.ErrRequestNotFound)

	// state is checked before participation
	_, err = f.svc.Send(ctx, f.request.ID, f.outsider.ID, "hi")
	assert.ErrorIs(t, err, chat.ErrNotConversable)

	_, err = f.stores.Requests.UpdateStatus(ctx, f.request.ID, models.RequestStatusPending, models.RequestStatusAccepted)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.request.ID, f.outsider.ID, "hi")
	assert.ErrorIs(t, err, chat.ErrNotParticipant)
}

func TestSend_Length(t *testing.T) {
	f := setup(t, models.RequestStatusAccepted)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, f.request.ID, f.sender.ID, strings.Repeat("a", 500))
	assert.NoError(t, err)

	_, err = f.svc.Send(ctx, f.request.ID, f.sender.ID, strings.Repeat("a", 501))
	assert.ErrorIs(t, err, chat.ErrInvalidInput)
}

func TestList(t *testing.T) {
	f := setup(t, models.RequestStatusAccepted)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		_, err := f.svc.Send(ctx, f.request.ID, f.sender.ID, body)
		require.NoError(t, err)
	}
	_, err := f.svc.Send(ctx, f.request.ID, f.receiver.ID, "four")
	require.NoError(t, err)

	msgs, err := f.svc.List(ctx, f.request.ID, f.receiver.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, body := range []string{"one", "two", "three", "four"} {
		assert.Equal(t, body, msgs[i].Body)
	}
	assert.Equal(t, "Bob", msgs[3].Sender.Name)

	_, err = f.svc.List(ctx, f.request.ID, f.outsider.ID)
	assert.ErrorIs(t, err, chat.ErrNotParticipant)
	_, err = f.svc.List(ctx, uuid.New(), f.sender.ID)
	assert.ErrorIs(t, err, chat.ErrRequestNotFound)
}

func TestList_PendingRequestIsEmpty(t *testing.T) {
	f := setup(t, models.RequestStatusPending)
	msgs, err := f.svc.List(context.Background(), f.request.ID, f.sender.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
