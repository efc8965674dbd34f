package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/store"
)

// FriendRequest is the add-friend payload.
type FriendRequest struct {
	FriendID int64 `json:"friend_id" binding:"required"`
}

// FriendResponse is one friend entry with its live profile.
type FriendResponse struct {
	User   UserResponse       `json:"user"`
	Status store.FriendStatus `json:"status"`
}

// FriendHandlers serves the friend-management endpoints.
type FriendHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewFriendHandlers creates friend handlers.
func NewFriendHandlers(st store.Store, logger *zerolog.Logger) *FriendHandlers {
	return &FriendHandlers{store: st, log: logger}
}

// Add handles POST /api/friends: send a friend request.
func (h *FriendHandlers) Add(c *gin.Context) {
	var req FriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	userID := c.GetInt64(ContextKeyUserID)
	if req.FriendID == userID {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot befriend yourself"})
		return
	}

	ctx := c.Request.Context()
	if existing, err := h.store.GetFriendship(ctx, userID, req.FriendID); err == nil && existing != nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "friendship already exists"})
		return
	}

	if _, err := h.store.CreateFriendRequest(ctx, userID, req.FriendID); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to create friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to create friend request"})
		return
	}

	c.Status(http.StatusCreated)
}

// Accept handles POST /api/friends/:user_id/accept.
func (h *FriendHandlers) Accept(c *gin.Context) {
	friendID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	userID := c.GetInt64(ContextKeyUserID)
	if err := h.store.UpdateFriendStatus(c.Request.Context(), friendID, userID, store.FriendStatusAccepted); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to accept friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to accept friend request"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Remove handles DELETE /api/friends/:user_id.
func (h *FriendHandlers) Remove(c *gin.Context) {
	friendID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	userID := c.GetInt64(ContextKeyUserID)
	if err := h.store.DeleteFriendship(c.Request.Context(), userID, friendID); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to remove friend")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to remove friend"})
		return
	}

	c.Status(http.StatusNoContent)
}

// List handles GET /api/friends. The optional status query filters by
// pending/accepted; each entry carries the friend's current online flag so
// the client can offer direct chat only to reachable friends.
func (h *FriendHandlers) List(c *gin.Context) {
	userID := c.GetInt64(ContextKeyUserID)

	var status *store.FriendStatus
	if raw := c.Query("status"); raw != "" {
		s := store.FriendStatus(raw)
		if s != store.FriendStatusPending && s != store.FriendStatusAccepted {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status filter"})
			return
		}
		status = &s
	}

	ctx := c.Request.Context()
	friends, err := h.store.ListFriends(ctx, userID, status)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list friends")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list friends"})
		return
	}

	out := make([]FriendResponse, 0, len(friends))
	for _, f := range friends {
		otherID := f.FriendID
		if otherID == userID {
			otherID = f.UserID
		}
		user, err := h.store.GetUserByID(ctx, otherID)
		if err != nil {
			// Friend row without a user row; skip rather than fail the list.
			h.log.Warn().Err(err).Int64("friend_id", otherID).Msg("friend profile missing")
			continue
		}
		out = append(out, FriendResponse{User: toUserResponse(user), Status: f.Status})
	}

	c.JSON(http.StatusOK, out)
}
