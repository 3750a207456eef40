// Package memory is an in-process store driver used by tests and local
// development. It applies the same uniqueness rules as the postgres schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DB holds every table behind a single lock
type DB struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	requests map[uuid.UUID]*models.ExchangeRequest
	messages []*models.Message
	ratings  []*models.Rating

	now  func() time.Time
	last time.Time
}

// New creates an empty database
func New() *DB {
	return &DB{
		users:    make(map[uuid.UUID]*models.User),
		requests: make(map[uuid.UUID]*models.ExchangeRequest),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Stores returns the store set backed by db
func (db *DB) Stores() *store.Stores {
	return &store.Stores{
		Users:    &userStore{db},
		Requests: &requestStore{db},
		Messages: &messageStore{db},
		Ratings:  &ratingStore{db},
	}
}

// tick returns a timestamp strictly after the previous one so that ordering
// by creation time is stable even on coarse clocks.
// Callers must hold mu for writing.
func (db *DB) tick() time.Time {
	t := db.now()
	if !t.After(db.last) {
		t = db.last.Add(time.Microsecond)
	}
	db.last = t
	return t
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Skills = append([]string(nil), u.Skills...)
	return &c
}

func cloneRequest(r *models.ExchangeRequest) *models.ExchangeRequest {
	c := *r
	return &c
}

type userStore struct{ db *DB }

func (s *userStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *userStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) Create(_ context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, user.Email) {
			return store.ErrDuplicate
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = s.db.tick()
	user.UpdatedAt = user.CreatedAt
	user.AvgRating = decimal.Zero
	user.RatingsCount = 0
	s.db.users[user.ID] = cloneUser(user)
	return nil
}

func (s *userStore) UpdateProfile(_ context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	u.Name = user.Name
	u.Bio = user.Bio
	u.Skills = append([]string(nil), user.Skills...)
	u.UpdatedAt = s.db.tick()
	*user = *cloneUser(u)
	return nil
}

func (s *userStore) UpdateRatingAggregate(_ context.Context, id uuid.UUID, avg decimal.Decimal, count int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.AvgRating = avg
	u.RatingsCount = count
	u.UpdatedAt = s.db.tick()
	return nil
}

func (s *userStore) Search(_ context.Context, skill string, exclude uuid.UUID, limit int) ([]*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	term := strings.ToLower(skill)
	var out []*models.User
	for _, u := range s.db.users {
		if u.ID == exclude {
			continue
		}
		for _, sk := range u.Skills {
			if strings.Contains(strings.ToLower(sk), term) {
				out = append(out, cloneUser(u))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *userStore) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.db.users))
	for id := range s.db.users {
		ids = append(ids, id)
	}
	return ids, nil
}

type requestStore struct{ db *DB }

func (s *requestStore) GetByID(_ context.Context, id uuid.UUID) (*models.ExchangeRequest, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	r, ok := s.db.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (s *requestStore) findActiveLocked(sender, receiver uuid.UUID, offered, requested string) *models.ExchangeRequest {
	for _, r := range s.db.requests {
		if r.SenderID == sender && r.ReceiverID == receiver &&
			r.SkillOffered == offered && r.SkillRequested == requested && r.Status.Active() {
			return r
		}
	}
	return nil
}

func (s *requestStore) FindActive(_ context.Context, sender, receiver uuid.UUID, skillOffered, skillRequested string) (*models.ExchangeRequest, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if r := s.findActiveLocked(sender, receiver, skillOffered, skillRequested); r != nil {
		return cloneRequest(r), nil
	}
	return nil, store.ErrNotFound
}

func (s *requestStore) Create(_ context.Context, req *models.ExchangeRequest) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if req.Status.Active() && s.findActiveLocked(req.SenderID, req.ReceiverID, req.SkillOffered, req.SkillRequested) != nil {
		return store.ErrDuplicate
	}
	req.ID = uuid.New()
	req.CreatedAt = s.db.tick()
	req.UpdatedAt = req.CreatedAt
	s.db.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *requestStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.RequestStatus) (*models.ExchangeRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if r.Status != from {
		return nil, store.ErrStatusChanged
	}
	r.Status = to
	r.UpdatedAt = s.db.tick()
	return cloneRequest(r), nil
}

func (s *requestStore) list(match func(*models.ExchangeRequest) bool) []*models.ExchangeRequest {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []*models.ExchangeRequest
	for _, r := range s.db.requests {
		if match(r) {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *requestStore) ListByReceiver(_ context.Context, receiver uuid.UUID) ([]*models.ExchangeRequest, error) {
	return s.list(func(r *models.ExchangeRequest) bool { return r.ReceiverID == receiver }), nil
}

func (s *requestStore) ListBySender(_ context.Context, sender uuid.UUID) ([]*models.ExchangeRequest, error) {
	return s.list(func(r *models.ExchangeRequest) bool { return r.SenderID == sender }), nil
}

type messageStore struct{ db *DB }

func (s *messageStore) Create(_ context.Context, msg *models.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	msg.ID = uuid.New()
	msg.CreatedAt = s.db.tick()
	c := *msg
	s.db.messages = append(s.db.messages, &c)
	return nil
}

func (s *messageStore) ListByRequest(_ context.Context, requestID uuid.UUID) ([]*models.Message, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []*models.Message
	for _, m := range s.db.messages {
		if m.RequestID == requestID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type ratingStore struct{ db *DB }

func (s *ratingStore) Create(_ context.Context, rating *models.Rating) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, r := range s.db.ratings {
		if r.RequestID == rating.RequestID && r.RaterID == rating.RaterID {
			return store.ErrDuplicate
		}
	}
	rating.ID = uuid.New()
	rating.CreatedAt = s.db.tick()
	c := *rating
	s.db.ratings = append(s.db.ratings, &c)
	return nil
}

func (s *ratingStore) GetByRequestAndRater(_ context.Context, requestID, raterID uuid.UUID) (*models.Rating, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, r := range s.db.ratings {
		if r.RequestID == requestID && r.RaterID == raterID {
			c := *r
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *ratingStore) list(match func(*models.Rating) bool) []*models.Rating {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []*models.Rating
	for _, r := range s.db.ratings {
		if match(r) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *ratingStore) ListByRatee(_ context.Context, ratee uuid.UUID) ([]*models.Rating, error) {
	return s.list(func(r *models.Rating) bool { return r.RateeID == ratee }), nil
}

func (s *ratingStore) ListByRater(_ context.Context, rater uuid.UUID) ([]*models.Rating, error) {
	return s.list(func(r *models.Rating) bool { return r.RaterID == rater }), nil
}

func (s *ratingStore) StarsByRatee(_ context.Context, ratee uuid.UUID) ([]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var stars []int
	for _, r := range s.db.ratings {
		if r.RateeID == ratee {
			stars = append(stars, r.Stars)
		}
	}
	return stars, nil
}
