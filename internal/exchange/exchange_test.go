package exchange_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/aimerfeng/SkillExchange/internal/config"
	apierrors "github.com/aimerfeng/SkillExchange/internal/errors"
	"github.com/aimerfeng/SkillExchange/internal/exchange"
	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/aimerfeng/SkillExchange/internal/store/memory"
	"github.com/aimerfeng/SkillExchange/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testLimits = &config.LimitsConfig{MaxRequestMessageLen: 300, MaxSkillLen: 100}

func setup(t *testing.T) (*exchange.Service, *store.Stores) {
	t.Helper()
	stores := memory.New().Stores()
	return exchange.NewService(stores.Requests, stores.Users, testLimits), stores
}

func propose(t *testing.T, svc *exchange.Service, from, to uuid.UUID) *models.RequestView {
	t.Helper()
	v, err := svc.Propose(context.Background(), from, &exchange.ProposeRequest{
		ReceiverID:     to,
		SkillOffered:   "Guitar",
		SkillRequested: "Python",
	})
	require.NoError(t, err)
	return v
}

func TestPropose(t *testing.T) {
	svc, stores := setup(t)
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")

	v, err := svc.Propose(context.Background(), a.ID, &exchange.ProposeRequest{
		ReceiverID:     b.ID,
		SkillOffered:   "  Guitar ",
		SkillRequested: "Python",
		Message:        " hi ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, v.Status)
	assert.Equal(t, "Guitar", v.SkillOffered)
	assert.Equal(t, "hi", v.Message)
	assert.Equal(t, "Alice", v.Sender.Name)
	assert.Equal(t, "Bob", v.Receiver.Name)
	assert.Empty(t, v.AllowedActions, "sender cannot act on a pending request")
}

func TestPropose_Validation(t *testing.T) {
	svc, stores := setup(t)
	ctx := context.Background()
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")

	tests := []struct {
		name string
		req  exchange.ProposeRequest
		kind apierrors.Kind
	}{
		{"missing receiver", exchange.ProposeRequest{SkillOffered: "a", SkillRequested: "b"}, apierrors.KindInvalidArgument},
		{"blank skill", exchange.ProposeRequest{ReceiverID: b.ID, SkillOffered: " ", SkillRequested: "b"}, apierrors.KindInvalidArgument},
		{"message too long", exchange.ProposeRequest{ReceiverID: b.ID, SkillOffered: "a", SkillRequested: "b", Message: strings.Repeat("x", 301)}, apierrors.KindInvalidArgument},
		{"self request", exchange.ProposeRequest{ReceiverID: a.ID, SkillOffered: "a", SkillRequested: "b"}, apierrors.KindInvalidArgument},
		{"unknown receiver", exchange.ProposeRequest{ReceiverID: uuid.New(), SkillOffered: "a", SkillRequested: "b"}, apierrors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Propose(ctx, a.ID, &tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apierrors.KindOf(err))
		})
	}

	_, err := svc.Propose(ctx, a.ID, &exchange.ProposeRequest{
		ReceiverID: b.ID, SkillOffered: "a", SkillRequested: "b", Message: strings.Repeat("x", 300),
	})
	assert.NoError(t, err)
}

func TestPropose_SkillLength(t *testing.T) {
	svc, stores := setup(t)
	ctx := context.Background()
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")

	_, err := svc.Propose(ctx, a.ID, &exchange.ProposeRequest{ReceiverID: b.ID, SkillOffered: strings.Repeat("x", 101), SkillRequested: "Python"})
	require.ErrorIs(t, err, exchange.ErrInvalidInput)
	assert.Equal(t, apierrors.KindInvalidArgument, apierrors.KindOf(err))

	_, err = svc.Propose(ctx, a.ID, &exchange.ProposeRequest{ReceiverID: b.ID, SkillOffered: "Guitar", SkillRequested: strings.Repeat("y", 101)})
	assert.ErrorIs(t, err, exchange.ErrInvalidInput)

	// the limit counts characters, not bytes
	v, err := svc.Propose(ctx, a.ID, &exchange.ProposeRequest{ReceiverID: b.ID, SkillOffered: strings.Repeat("é", 100), SkillRequested: "Python"})
	require.NoError(t, err)
	assert.Equal(t, 100, utf8.RuneCountInString(v.SkillOffered))
}

func TestPropose_DuplicateActive(t *testing.T) {
	svc, stores := setup(t)
	ctx := context.Background()
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")

	first := propose(t, svc, a.ID, b.ID)

	_, err := svc.Propose(ctx, a.ID, &exchange.ProposeRequest{ReceiverID: b.ID, SkillOffered: "Guitar", SkillRequested: "Python"})
	assert.ErrorIs(t, err, exchange.ErrDuplicateRequest)

	// still blocked while accepted
	_, err = svc.Transition(ctx, first.ID, b.ID, models.RequestStatusAccepted)
	require.NoError(t, err)
	_, err = svc.Propose(ctx, a.ID, &exchange.ProposeRequest{ReceiverID: b.ID, SkillOffered: "Guitar", SkillRequested: "Python"})
	assert.ErrorIs(t, err, exchange.ErrDuplicateRequest)

	// completion frees the tuple
	_, err = svc.Transition(ctx, first.ID, a.ID, models.RequestStatusCompleted)
	require.NoError(t, err)
	propose(t, svc, a.ID, b.ID)

	// the reverse direction is a different tuple
	propose(t, svc, b.ID, a.ID)
}

func TestPropose_Concurrent(t *testing.T) {
	svc, stores := setup(t)
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Propose(context.Background(), a.ID, &exchange.ProposeRequest{
				ReceiverID: b.ID, SkillOffered: "Guitar", SkillRequested: "Python",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, exchange.ErrDuplicateRequest)
	}
	assert.Equal(t, 1, succeeded)
}

func TestTransition_Scenario(t *testing.T) {
	svc, stores := setup(t)
	ctx := context.Background()
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")

	req := propose(t, svc, a.ID, b.ID)

	incoming, err := svc.ListIncoming(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, []models.RequestStatus{models.RequestStatusAccepted, models.RequestStatusRejected}, incoming[0].AllowedActions)

	accepted, err := svc.Transition(ctx, req.ID, b.ID, models.RequestStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, accepted.Status)
	assert.Equal(t, "Alice", accepted.Sender.Name)
	assert.Equal(t, []string{"Guitar"}, accepted.Sender.Skills)
	assert.Equal(t, []models.RequestStatus{models.RequestStatusCompleted}, accepted.AllowedActions)

	completed, err := svc.Transition(ctx, req.ID, b.ID, models.RequestStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCompleted, completed.Status)
	assert.Empty(t, completed.AllowedActions)

	_, err = svc.Transition(ctx, req.ID, a.ID, models.RequestStatusCompleted)
	assert.ErrorIs(t, err, exchange.ErrInvalidTransition)
}

func TestTransition_Errors(t *testing.T) {
	svc, stores := setup(t)
	ctx := context.Background()
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")
	c := storetest.CreateUser(t, stores, "Carol", "Cooking")
	req := propose(t, svc, a.ID, b.ID)

	_, err := svc.Transition(ctx, req.ID, b.ID, models.RequestStatusPending)
	assert.ErrorIs(t, err, exchange.ErrInvalidTargetStatus)

	_, err = svc.Transition(ctx, req.ID, b.ID, "archived")
	assert.ErrorIs(t, err, exchange.ErrInvalidTargetStatus)

	_, err = svc.Transition(ctx, uuid.New(), b.ID, models.RequestStatusAccepted)
	assert.ErrorIs(t, err, exchange.ErrRequestNotFound)

	_, err = svc.Transition(ctx, req.ID, c.ID, models.RequestStatusAccepted)
	assert.ErrorIs(t, err, exchange.ErrNotParticipant)

	_, err = svc.Transition(ctx, req.ID, a.ID, models.RequestStatusAccepted)
	assert.ErrorIs(t, err, exchange.ErrReceiverOnly)

	_, err = svc.Transition(ctx, req.ID, a.ID, models.RequestStatusCompleted)
	assert.ErrorIs(t, err, exchange.ErrInvalidTransition)

	_, err = svc.Transition(ctx, req.ID, b.ID, models.RequestStatusAccepted)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, req.ID, b.ID, models.RequestStatusRejected)
	assert.ErrorIs(t, err, exchange.ErrInvalidTransition)
}

func TestTransition_ConcurrentOnlyOneWins(t *testing.T) {
	svc, stores := setup(t)
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")
	req := propose(t, svc, a.ID, b.ID)

	targets := []models.RequestStatus{models.RequestStatusAccepted, models.RequestStatusRejected}
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Transition(context.Background(), req.ID, b.ID, targets[i%2])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, exchange.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
}

func TestGet(t *testing.T) {
	svc, stores := setup(t)
	ctx := context.Background()
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")
	c := storetest.CreateUser(t, stores, "Carol", "Cooking")
	req := propose(t, svc, a.ID, b.ID)

	v, err := svc.Get(ctx, req.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, v.ID)

	_, err = svc.Get(ctx, req.ID, c.ID)
	assert.ErrorIs(t, err, exchange.ErrNotParticipant)
	_, err = svc.Get(ctx, uuid.New(), a.ID)
	assert.ErrorIs(t, err, exchange.ErrRequestNotFound)
}

func TestListSent_NewestFirst(t *testing.T) {
	svc, stores := setup(t)
	ctx := context.Background()
	a := storetest.CreateUser(t, stores, "Alice", "Guitar")
	b := storetest.CreateUser(t, stores, "Bob", "Python")
	c := storetest.CreateUser(t, stores, "Carol", "Cooking")

	first := propose(t, svc, a.ID, b.ID)
	second := propose(t, svc, a.ID, c.ID)

	sent, err := svc.ListSent(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, second.ID, sent[0].ID)
	assert.Equal(t, first.ID, sent[1].ID)
	assert.Equal(t, "Carol", sent[0].Receiver.Name)

	incoming, err := svc.ListIncoming(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)
}

// TestProperty_TransitionTable checks Decide against the lifecycle rules for
// every status, target and role.
func TestProperty_TransitionTable(t *testing.T) {
	statuses := []models.RequestStatus{
		models.RequestStatusPending, models.RequestStatusAccepted,
		models.RequestStatusRejected, models.RequestStatusCompleted, "bogus",
	}
	roles := []models.ParticipantRole{models.RoleNone, models.RoleSender, models.RoleReceiver}

	rapid.Check(t, func(t *rapid.T) {
		current := rapid.SampledFrom(statuses[:4]).Draw(t, "current")
		target := rapid.SampledFrom(statuses).Draw(t, "target")
		role := rapid.SampledFrom(roles).Draw(t, "role")

		err := exchange.Decide(current, target, role)

		isTarget := target == models.RequestStatusAccepted || target == models.RequestStatusRejected || target == models.RequestStatusCompleted
		legal := (current == models.RequestStatusPending && role == models.RoleReceiver &&
			(target == models.RequestStatusAccepted || target == models.RequestStatusRejected)) ||
			(current == models.RequestStatusAccepted && target == models.RequestStatusCompleted && role != models.RoleNone)

		switch {
		case legal:
			if err != nil {
				t.Fatalf("PROPERTY VIOLATION: %s -> %s by %q should be allowed, got %v", current, target, role, err)
			}
		case !isTarget:
			if apierrors.KindOf(err) != apierrors.KindInvalidArgument {
				t.Fatalf("PROPERTY VIOLATION: target %s should be invalid argument, got %v", target, err)
			}
		case role == models.RoleNone:
			if apierrors.KindOf(err) != apierrors.KindForbidden {
				t.Fatalf("PROPERTY VIOLATION: non-participant should be forbidden, got %v", err)
			}
		case role == models.RoleSender && target != models.RequestStatusCompleted:
			if apierrors.KindOf(err) != apierrors.KindForbidden {
				t.Fatalf("PROPERTY VIOLATION: sender %s should be forbidden, got %v", target, err)
			}
		default:
			if apierrors.KindOf(err) != apierrors.KindInvalidState {
				t.Fatalf("PROPERTY VIOLATION: %s -> %s by %q should be invalid state, got %v", current, target, role, err)
			}
		}

		if current == models.RequestStatusRejected || current == models.RequestStatusCompleted {
			if err == nil {
				t.Fatalf("PROPERTY VIOLATION: %s is terminal but %s was allowed", current, target)
			}
		}
	})
}
