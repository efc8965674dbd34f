package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/auth"
	"github.com/driftchat/driftchat-server/internal/store"
)

const messageHistoryLimit = 100

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

// TokenResponse carries an issued JWT.
type TokenResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id,omitempty"`
}

// ProfileRequest updates the caller's profile.
type ProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Country     string `json:"country"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country,omitempty"`
	IsGuest     bool   `json:"is_guest"`
	Online      bool   `json:"online"`
}

// MessageResponse is one persisted message.
type MessageResponse struct {
	ID         string `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Body       string `json:"body"`
	TS         int64  `json:"ts"`
}

// APIHandlers serves the REST part of the API.
type APIHandlers struct {
	auth  *auth.Service
	store store.Store
	log   *zerolog.Logger
}

// NewAPIHandlers creates REST handlers.
func NewAPIHandlers(authService *auth.Service, st store.Store, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{auth: authService, store: st, log: logger}
}

// Register handles POST /api/register.
func (h *APIHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.auth.Register(c.Request.Context(), req.DisplayName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
		case errors.Is(err, auth.ErrInvalidDisplayName), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Msg("registration failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "registration failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, TokenResponse{Token: token})
}

// Login handles POST /api/login.
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.DisplayName, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "login failed"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// Guest handles POST /api/guest: anonymous entry with a throwaway identity.
func (h *APIHandlers) Guest(c *gin.Context) {
	token, sessionID, err := h.auth.CreateGuestUser(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("guest creation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "guest creation failed"})
		return
	}

	c.JSON(http.StatusCreated, TokenResponse{Token: token, SessionID: sessionID})
}

// Me handles GET /api/me.
func (h *APIHandlers) Me(c *gin.Context) {
	userID := c.GetInt64(ContextKeyUserID)
	user, err := h.store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// UpdateProfile handles PUT /api/profile.
func (h *APIHandlers) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	userID := c.GetInt64(ContextKeyUserID)
	if err := h.store.UpdateProfile(c.Request.Context(), userID, req.DisplayName, req.Country); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("profile update failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "profile update failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Messages handles GET /api/messages/:user_id: the persisted conversation
// between the caller and another user, oldest first.
func (h *APIHandlers) Messages(c *gin.Context) {
	otherID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	userID := c.GetInt64(ContextKeyUserID)
	messages, err := h.store.ListMessagesBetween(c.Request.Context(), userID, otherID, messageHistoryLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list messages"})
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, MessageResponse{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Body:       m.Body,
			TS:         m.CreatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Country:     u.Country,
		IsGuest:     u.IsGuest,
		Online:      u.Online,
	}
}
