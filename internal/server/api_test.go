package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aimerfeng/SkillExchange/internal/config"
	apierrors "github.com/aimerfeng/SkillExchange/internal/errors"
	"github.com/aimerfeng/SkillExchange/internal/models"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/aimerfeng/SkillExchange/internal/store/memory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test", Name: "skillexchange", RequestTimeout: 5 * time.Second},
		JWT: config.JWTConfig{
			Secret:             "test-secret-key-for-jwt-testing-32chars",
			Issuer:             "skillexchange",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
		},
		Password: config.PasswordConfig{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		Limits: config.LimitsConfig{
			MaxMessageLen:        500,
			MaxRequestMessageLen: 300,
			MaxBioLen:            500,
			MaxFeedbackLen:       500,
			MaxSearchResults:     20,
			MaxNameLen:           100,
			MaxSkillLen:          100,
		},
		RateLimit: config.RateLimitConfig{AuthLimit: 20, MessageLimit: 60, WindowSeconds: 60},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

type client struct {
	t      *testing.T
	router http.Handler
}

func newClient(t *testing.T, checks ...HealthCheck) *client {
	srv := NewAPIServer(testConfig(), memory.New().Stores(), nil, checks...)
	return &client{t: t, router: srv.Router()}
}

func (c *client) do(method, path, token string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type session struct {
	ID      string
	Access  string
	Refresh string
}

func (c *client) register(name, email string, skills ...string) session {
	c.t.Helper()
	w := c.do("POST", "/api/v1/auth/register", "", gin.H{
		"name": name, "email": email, "password": "password123", "skills": skills,
	})
	require.Equal(c.t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}](c.t, w)
	return session{ID: resp.User.ID, Access: resp.Tokens.AccessToken, Refresh: resp.Tokens.RefreshToken}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) apierrors.ErrorCode {
	t.Helper()
	return decode[apierrors.ErrorResponse](t, w).Error.Code
}

func TestHealth(t *testing.T) {
	c := newClient(t)
	assert.Equal(t, http.StatusOK, c.do("GET", "/health", "", nil).Code)

	c = newClient(t, HealthCheck{Name: "database", Check: func(context.Context) error { return errors.New("down") }})
	w := c.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthEndpoints(t *testing.T) {
	c := newClient(t)

	t.Run("ProtectedEndpoints_RejectWithoutAuth", func(t *testing.T) {
		for _, path := range []string{"/api/v1/auth/me", "/api/v1/profile/me", "/api/v1/requests", "/api/v1/users/search?skill=go"} {
			w := c.do("GET", path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		}
	})

	alice := c.register("Alice", "alice@example.com", "Guitar")

	t.Run("Me", func(t *testing.T) {
		w := c.do("GET", "/api/v1/auth/me", alice.Access, nil)
		require.Equal(t, http.StatusOK, w.Code)
		me := decode[map[string]any](t, w)
		assert.Equal(t, "alice@example.com", me["email"])
		assert.NotContains(t, me, "password_hash")
	})

	t.Run("DuplicateRegister", func(t *testing.T) {
		w := c.do("POST", "/api/v1/auth/register", "", gin.H{
			"name": "Alice", "email": "alice@example.com", "password": "password123", "skills": []string{"x"},
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apierrors.ErrConflict, errCode(t, w))
	})

	t.Run("InvalidRegister", func(t *testing.T) {
		w := c.do("POST", "/api/v1/auth/register", "", gin.H{"name": "A", "email": "bad"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Login", func(t *testing.T) {
		w := c.do("POST", "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "password123"})
		assert.Equal(t, http.StatusOK, w.Code)

		w = c.do("POST", "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong-password"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, apierrors.ErrInvalidCredentials, errCode(t, w))
	})

	t.Run("Refresh", func(t *testing.T) {
		w := c.do("POST", "/api/v1/auth/refresh", "", gin.H{"refresh_token": alice.Refresh})
		assert.Equal(t, http.StatusOK, w.Code)

		w = c.do("POST", "/api/v1/auth/refresh", "", gin.H{"refresh_token": alice.Access})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Logout", func(t *testing.T) {
		w := c.do("POST", "/api/v1/auth/logout", alice.Access, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestProfileAndSearch(t *testing.T) {
	c := newClient(t)
	alice := c.register("Alice", "alice@example.com", "Guitar")
	bob := c.register("Bob", "bob@example.com", "Python", "Guitar")

	w := c.do("PUT", "/api/v1/profile/me", alice.Access, gin.H{"bio": "I play guitar"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "I play guitar", decode[map[string]any](t, w)["bio"])

	w = c.do("GET", "/api/v1/users/search?skill=guitar", alice.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[struct {
		Users []struct {
			ID string `json:"id"`
		} `json:"users"`
	}](t, w)
	require.Len(t, found.Users, 1)
	assert.Equal(t, bob.ID, found.Users[0].ID)

	w = c.do("GET", "/api/v1/users/"+alice.ID, bob.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode[map[string]any](t, w), "email")

	w = c.do("GET", "/api/v1/users/not-a-uuid", bob.Access, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestExchangeScenario walks a request from proposal to mutual ratings
func TestExchangeScenario(t *testing.T) {
	c := newClient(t)
	alice := c.register("Alice", "alice@example.com", "Guitar")
	bob := c.register("Bob", "bob@example.com", "Python")
	carol := c.register("Carol", "carol@example.com", "Cooking")

	w := c.do("POST", "/api/v1/requests", alice.Access, gin.H{
		"receiver_id": bob.ID, "skill_offered": "Guitar", "skill_requested": "Python",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	requestID := decode[map[string]any](t, w)["id"].(string)

	w = c.do("POST", "/api/v1/requests", alice.Access, gin.H{
		"receiver_id": bob.ID, "skill_offered": "Guitar", "skill_requested": "Python",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apierrors.ErrConflict, errCode(t, w))

	// messaging is closed while pending
	w = c.do("POST", "/api/v1/messages", alice.Access, gin.H{"request_id": requestID, "body": "hi"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apierrors.ErrInvalidState, errCode(t, w))

	w = c.do("POST", "/api/v1/requests/"+requestID+"/status", alice.Access, gin.H{"status": "accepted"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do("GET", "/api/v1/requests?role=incoming", bob.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	incoming := decode[struct {
		Requests []struct {
			ID             string   `json:"id"`
			AllowedActions []string `json:"allowed_actions"`
		} `json:"requests"`
	}](t, w)
	require.Len(t, incoming.Requests, 1)
	assert.Equal(t, []string{"accepted", "rejected"}, incoming.Requests[0].AllowedActions)

	w = c.do("POST", "/api/v1/requests/"+requestID+"/status", bob.Access, gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do("POST", "/api/v1/messages", alice.Access, gin.H{"request_id": requestID, "body": "hi Bob"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = c.do("POST", "/api/v1/messages", carol.Access, gin.H{"request_id": requestID, "body": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do("GET", "/api/v1/messages?requestId="+requestID, bob.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[struct {
		Messages []struct {
			Body   string `json:"body"`
			Sender struct {
				Name string `json:"name"`
			} `json:"sender"`
		} `json:"messages"`
	}](t, w)
	require.Len(t, msgs.Messages, 1)
	assert.Equal(t, "Alice", msgs.Messages[0].Sender.Name)

	// rating is closed until completion
	w = c.do("POST", "/api/v1/ratings", alice.Access, gin.H{"request_id": requestID, "ratee_id": bob.ID, "stars": 5})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apierrors.ErrInvalidState, errCode(t, w))

	w = c.do("POST", "/api/v1/requests/"+requestID+"/status", bob.Access, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do("POST", "/api/v1/ratings", alice.Access, gin.H{"request_id": requestID, "ratee_id": bob.ID, "stars": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = c.do("POST", "/api/v1/ratings", alice.Access, gin.H{"request_id": requestID, "ratee_id": bob.ID, "stars": 4})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apierrors.ErrConflict, errCode(t, w))

	w = c.do("GET", "/api/v1/ratings/received/"+bob.ID, carol.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	received := decode[struct {
		Summary struct {
			AvgRating    string `json:"avg_rating"`
			RatingsCount int    `json:"ratings_count"`
		} `json:"summary"`
		Ratings []map[string]any `json:"ratings"`
	}](t, w)
	assert.Equal(t, "5", received.Summary.AvgRating)
	assert.Equal(t, 1, received.Summary.RatingsCount)
	assert.Len(t, received.Ratings, 1)

	w = c.do("GET", "/api/v1/ratings/given/"+alice.ID, alice.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestListRequests_InvalidRole(t *testing.T) {
	c := newClient(t)
	alice := c.register("Alice", "alice@example.com", "Guitar")

	w := c.do("GET", "/api/v1/requests?role=everything", alice.Access, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.ErrInvalidRequest, errCode(t, w))

	w = c.do("GET", "/api/v1/messages?requestId=nope", alice.Access, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.ErrInvalidRequest, errCode(t, w))
}

// unavailableUsers fails profile reads while registration keeps working
type unavailableUsers struct {
	store.UserStore
}

func (unavailableUsers) GetByID(context.Context, uuid.UUID) (*models.User, error) {
	return nil, errors.New("connection reset by peer")
}

func TestInternalErrorsAreLoggedWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })

	stores := memory.New().Stores()
	stores.Users = unavailableUsers{stores.Users}
	c := &client{t: t, router: NewAPIServer(testConfig(), stores, nil).Router()}
	alice := c.register("Alice", "alice@example.com", "Guitar")

	req := httptest.NewRequest("GET", "/api/v1/profile/me", nil)
	req.Header.Set("Authorization", "Bearer "+alice.Access)
	req.Header.Set("X-Correlation-ID", "corr-42")
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apierrors.ErrInternalServer, errCode(t, w))
	assert.NotContains(t, w.Body.String(), "connection reset", "internal details stay in the logs")

	var found bool
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		var entry map[string]any
		if json.Unmarshal(line, &entry) != nil || entry["operation"] != "get_profile" {
			continue
		}
		found = true
		assert.Equal(t, "corr-42", entry["correlation_id"])
		assert.Equal(t, w.Header().Get("X-Request-ID"), entry["request_id"])
		assert.Contains(t, entry["error"], "connection reset")
	}
	assert.True(t, found, "expected an error log entry for get_profile")
}
