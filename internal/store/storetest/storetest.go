// Package storetest holds the behaviour every store driver must share.
// Driver packages call Run from their tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store set for one subtest
type Factory func(t *testing.T) *store.Stores

// Run executes the contract suite against the driver built by newStores
func Run(t *testing.T, newStores Factory) {
	t.Run("UserEmailUniqueCaseInsensitive", func(t *testing.T) { testUserEmailUnique(t, newStores(t)) })
	t.Run("UserProfileAndAggregate", func(t *testing.T) { testUserProfileAndAggregate(t, newStores(t)) })
	t.Run("UserSearch", func(t *testing.T) { testUserSearch(t, newStores(t)) })
	t.Run("RequestActiveTupleUnique", func(t *testing.T) { testRequestActiveTupleUnique(t, newStores(t)) })
	t.Run("RequestConcurrentCreate", func(t *testing.T) { testRequestConcurrentCreate(t, newStores(t)) })
	t.Run("RequestCompareAndSet", func(t *testing.T) { testRequestCompareAndSet(t, newStores(t)) })
	t.Run("RequestListing", func(t *testing.T) { testRequestListing(t, newStores(t)) })
	t.Run("MessagesAscending", func(t *testing.T) { testMessagesAscending(t, newStores(t)) })
	t.Run("RatingUniquePerRater", func(t *testing.T) { testRatingUnique(t, newStores(t)) })
	t.Run("RatingConcurrentCreate", func(t *testing.T) { testRatingConcurrentCreate(t, newStores(t)) })
}

// CreateUser inserts a user with the given name and skills
func CreateUser(t *testing.T, s *store.Stores, name string, skills ...string) *models.User {
	t.Helper()
	u := &models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		PasswordHash: "hash",
		Skills:       skills,
	}
	require.NoError(t, s.Users.Create(context.Background(), u))
	return u
}

func testUserEmailUnique(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	u := &models.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "h", Skills: []string{"Go"}}
	require.NoError(t, s.Users.Create(ctx, u))
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.True(t, u.AvgRating.Equal(decimal.Zero))
	assert.Zero(t, u.RatingsCount)

	dup := &models.User{Name: "Other", Email: "ADA@example.com", PasswordHash: "h"}
	err := s.Users.Create(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := s.Users.GetByEmail(ctx, "Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Users.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUserProfileAndAggregate(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	u := CreateUser(t, s, "Grace", "Cobol")

	u.Bio = "compilers"
	u.Skills = []string{"Cobol", "Fortran"}
	require.NoError(t, s.Users.UpdateProfile(ctx, u))
	assert.Equal(t, []string{"Cobol", "Fortran"}, u.Skills)

	require.NoError(t, s.Users.UpdateRatingAggregate(ctx, u.ID, decimal.RequireFromString("4.3"), 3))
	got, err := s.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "compilers", got.Bio)
	assert.True(t, got.AvgRating.Equal(decimal.RequireFromString("4.3")), "avg %s", got.AvgRating)
	assert.Equal(t, 3, got.RatingsCount)

	err = s.Users.UpdateRatingAggregate(ctx, uuid.New(), decimal.Zero, 0)
	assert.ErrorIs(t, err, store.ErrNotFound)

	ids, err := s.Users.ListIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, u.ID)
}

func testUserSearch(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	me := CreateUser(t, s, "Me", "Python")
	a := CreateUser(t, s, "Alice", "python scripting")
	CreateUser(t, s, "Bob", "Guitar")
	c := CreateUser(t, s, "Carol", "PYTHON")
	CreateUser(t, s, "Dan", "100% effort")

	found, err := s.Users.Search(ctx, "pyth", me.ID, 20)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, u := range found {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{a.ID, c.ID}, ids)

	limited, err := s.Users.Search(ctx, "pyth", me.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// Wildcards in the term are literal
	pct, err := s.Users.Search(ctx, "%", me.ID, 20)
	require.NoError(t, err)
	require.Len(t, pct, 1)
	assert.Equal(t, "Dan", pct[0].Name)
}

func newRequest(sender, receiver *models.User) *models.ExchangeRequest {
	return &models.ExchangeRequest{
		SenderID:       sender.ID,
		ReceiverID:     receiver.ID,
		SkillOffered:   "Guitar",
		SkillRequested: "Python",
	}
}

func testRequestActiveTupleUnique(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	a := CreateUser(t, s, "A", "Guitar")
	b := CreateUser(t, s, "B", "Python")

	first := newRequest(a, b)
	require.NoError(t, s.Requests.Create(ctx, first))
	assert.Equal(t, models.RequestStatusPending, first.Status)

	assert.ErrorIs(t, s.Requests.Create(ctx, newRequest(a, b)), store.ErrDuplicate)

	// Reverse direction is a different tuple
	require.NoError(t, s.Requests.Create(ctx, newRequest(b, a)))

	active, err := s.Requests.FindActive(ctx, a.ID, b.ID, "Guitar", "Python")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	// A rejected request frees the tuple
	_, err = s.Requests.UpdateStatus(ctx, first.ID, models.RequestStatusPending, models.RequestStatusRejected)
	require.NoError(t, err)
	_, err = s.Requests.FindActive(ctx, a.ID, b.ID, "Guitar", "Python")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.Requests.Create(ctx, newRequest(a, b)))
}

func testRequestConcurrentCreate(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	a := CreateUser(t, s, "A", "Guitar")
	b := CreateUser(t, s, "B", "Python")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Requests.Create(ctx, newRequest(a, b))
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrDuplicate):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dup)
}

func testRequestCompareAndSet(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	a := CreateUser(t, s, "A")
	b := CreateUser(t, s, "B")
	req := newRequest(a, b)
	require.NoError(t, s.Requests.Create(ctx, req))

	updated, err := s.Requests.UpdateStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, updated.Status)

	_, err = s.Requests.UpdateStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusRejected)
	assert.ErrorIs(t, err, store.ErrStatusChanged)

	_, err = s.Requests.UpdateStatus(ctx, uuid.New(), models.RequestStatusPending, models.RequestStatusAccepted)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRequestListing(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	a := CreateUser(t, s, "A")
	b := CreateUser(t, s, "B")

	var created []uuid.UUID
	for _, skill := range []string{"Go", "Rust", "Zig"} {
		r := newRequest(a, b)
		r.SkillOffered = skill
		require.NoError(t, s.Requests.Create(ctx, r))
		created = append(created, r.ID)
	}

	incoming, err := s.Requests.ListByReceiver(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 3)
	assert.Equal(t, created[2], incoming[0].ID, "newest first")
	assert.Equal(t, created[0], incoming[2].ID)

	sent, err := s.Requests.ListBySender(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, sent, 3)

	none, err := s.Requests.ListBySender(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMessagesAscending(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	a := CreateUser(t, s, "A")
	b := CreateUser(t, s, "B")
	req := newRequest(a, b)
	require.NoError(t, s.Requests.Create(ctx, req))

	bodies := []string{"hi", "hello", "when?"}
	for i, body := range bodies {
		from, to := a, b
		if i%2 == 1 {
			from, to = b, a
		}
		msg := &models.Message{RequestID: req.ID, SenderID: from.ID, ReceiverID: to.ID, Body: body}
		require.NoError(t, s.Messages.Create(ctx, msg))
		assert.NotEqual(t, uuid.Nil, msg.ID)
	}

	msgs, err := s.Messages.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, bodies[i], m.Body)
	}
}

func testRatingUnique(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	a := CreateUser(t, s, "A")
	b := CreateUser(t, s, "B")
	req := newRequest(a, b)
	require.NoError(t, s.Requests.Create(ctx, req))

	r := &models.Rating{RequestID: req.ID, RaterID: a.ID, RateeID: b.ID, Stars: 5}
	require.NoError(t, s.Ratings.Create(ctx, r))

	again := &models.Rating{RequestID: req.ID, RaterID: a.ID, RateeID: b.ID, Stars: 1}
	assert.ErrorIs(t, s.Ratings.Create(ctx, again), store.ErrDuplicate)

	// The counterpart rates independently
	back := &models.Rating{RequestID: req.ID, RaterID: b.ID, RateeID: a.ID, Stars: 4}
	require.NoError(t, s.Ratings.Create(ctx, back))

	got, err := s.Ratings.GetByRequestAndRater(ctx, req.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stars)

	stars, err := s.Ratings.StarsByRatee(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, stars)

	given, err := s.Ratings.ListByRater(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, given, 1)

	received, err := s.Ratings.ListByRatee(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, b.ID, received[0].RaterID)
}

func testRatingConcurrentCreate(t *testing.T, s *store.Stores) {
	ctx := context.Background()
	a := CreateUser(t, s, "A")
	b := CreateUser(t, s, "B")
	req := newRequest(a, b)
	require.NoError(t, s.Requests.Create(ctx, req))

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok int
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(stars int) {
			defer wg.Done()
			err := s.Ratings.Create(ctx, &models.Rating{RequestID: req.ID, RaterID: a.ID, RateeID: b.ID, Stars: stars})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, store.ErrDuplicate)
		}(i%5 + 1)
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}
