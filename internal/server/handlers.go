package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/aimerfeng/SkillExchange/internal/auth"
	"github.com/aimerfeng/SkillExchange/internal/chat"
	apierrors "github.com/aimerfeng/SkillExchange/internal/errors"
	"github.com/aimerfeng/SkillExchange/internal/exchange"
	"github.com/aimerfeng/SkillExchange/internal/middleware"
	"github.com/aimerfeng/SkillExchange/internal/profile"
	"github.com/aimerfeng/SkillExchange/internal/rating"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// currentUser returns the authenticated identity. JWTAuth guarantees a
// parsable id on protected routes.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id := middleware.GetUserIDFromContext(c)
	if id == uuid.Nil {
		respondError(c, apierrors.ErrUnauthorizedError)
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apierrors.NewValidationError(name+" must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return false
	}
	return true
}

// handleRegister handles user registration
func (s *APIServer) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err, "register")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// handleLogin handles user login
func (s *APIServer) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.authService.Login(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err, "login")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleRefresh handles token refresh
func (s *APIServer) handleRefresh(c *gin.Context) {
	var req auth.RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err, "refresh")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleLogout revokes the presented access token and the optional refresh token
func (s *APIServer) handleLogout(c *gin.Context) {
	var req auth.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	if err := s.authService.Logout(c.Request.Context(), middleware.GetClaimsFromContext(c), req.RefreshToken); err != nil {
		respondServiceError(c, err, "logout")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (s *APIServer) handleMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := s.authService.Me(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "me")
		return
	}

	c.JSON(http.StatusOK, user)
}

func (s *APIServer) handleGetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := s.profileService.GetMe(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "get_profile")
		return
	}

	c.JSON(http.StatusOK, user)
}

func (s *APIServer) handleUpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req profile.UpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := s.profileService.UpdateMe(c.Request.Context(), userID, &req)
	if err != nil {
		respondServiceError(c, err, "update_profile")
		return
	}

	c.JSON(http.StatusOK, user)
}

func (s *APIServer) handleSearchUsers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	users, err := s.profileService.Search(c.Request.Context(), userID, c.Query("skill"))
	if err != nil {
		respondServiceError(c, err, "search_users")
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *APIServer) handleGetUser(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	p, err := s.profileService.GetPublic(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "get_user")
		return
	}

	c.JSON(http.StatusOK, p)
}

func (s *APIServer) handleProposeRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req exchange.ProposeRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := s.exchangeService.Propose(c.Request.Context(), userID, &req)
	if err != nil {
		respondServiceError(c, err, "propose_request")
		return
	}

	c.JSON(http.StatusCreated, view)
}

// handleListRequests lists incoming (default) or sent requests
func (s *APIServer) handleListRequests(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	role := c.DefaultQuery("role", "incoming")

	var (
		views any
		err   error
	)
	switch role {
	case "incoming":
		views, err = s.exchangeService.ListIncoming(ctx, userID)
	case "sent":
		views, err = s.exchangeService.ListSent(ctx, userID)
	default:
		respondError(c, apierrors.NewInvalidRequestError("role must be incoming or sent"))
		return
	}
	if err != nil {
		respondServiceError(c, err, "list_requests")
		return
	}

	c.JSON(http.StatusOK, gin.H{"role": role, "requests": views})
}

func (s *APIServer) handleGetRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	view, err := s.exchangeService.Get(c.Request.Context(), id, userID)
	if err != nil {
		respondServiceError(c, err, "get_request")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *APIServer) handleTransitionRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req exchange.TransitionRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := s.exchangeService.Transition(c.Request.Context(), id, userID, req.Status)
	if err != nil {
		respondServiceError(c, err, "transition_request")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *APIServer) handleSendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req chat.SendRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := s.chatService.Send(c.Request.Context(), req.RequestID, userID, req.Body)
	if err != nil {
		respondServiceError(c, err, "send_message")
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (s *APIServer) handleListMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, err := uuid.Parse(c.Query("requestId"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("requestId must be a valid UUID"))
		return
	}

	msgs, err := s.chatService.List(c.Request.Context(), requestID, userID)
	if err != nil {
		respondServiceError(c, err, "list_messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *APIServer) handleSubmitRating(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req rating.SubmitRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := s.ratingService.Submit(c.Request.Context(), userID, &req)
	if err != nil {
		respondServiceError(c, err, "submit_rating")
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (s *APIServer) handleListReceivedRatings(c *gin.Context) {
	id, ok := pathUUID(c, "userId")
	if !ok {
		return
	}

	received, err := s.ratingService.ListReceived(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "list_received_ratings")
		return
	}

	c.JSON(http.StatusOK, received)
}

func (s *APIServer) handleListGivenRatings(c *gin.Context) {
	id, ok := pathUUID(c, "userId")
	if !ok {
		return
	}

	given, err := s.ratingService.ListGiven(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "list_given_ratings")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ratings": given})
}
