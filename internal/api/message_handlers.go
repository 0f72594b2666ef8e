/*
File: internal/api/message_handlers.go
Description: HTTP handlers for the messaging surface: contact listing with
unread counts, conversation history, sending, and read receipts.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tinywideclouds/go-chat-service/internal/middleware"
	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

type contactsResponse struct {
	Users          []*chat.User   `json:"users"`
	UnreadMessages map[string]int `json:"unsendMessages"`
}

// ContactsHandler lists every other user together with the count of unread
// messages they have sent to the caller.
func (a *API) ContactsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		WriteJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	users, err := a.users.List(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Str("user", userID).Msg("Failed to list users")
		WriteJSONError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}

	unread, err := a.messages.UnreadCounts(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Str("user", userID).Msg("Failed to count unread messages")
		WriteJSONError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}

	WriteJSON(w, http.StatusOK, contactsResponse{Users: users, UnreadMessages: unread})
}

type historyResponse struct {
	Messages []*chat.Message `json:"messages"`
}

// HistoryHandler returns the conversation with the selected user, oldest
// first, and marks the caller's unread messages in it as read.
func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		WriteJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}
	otherID := r.PathValue("id")
	if otherID == "" {
		WriteJSONError(w, http.StatusBadRequest, "missing user id")
		return
	}

	messages, err := a.messages.Conversation(r.Context(), userID, otherID)
	if err != nil {
		a.logger.Error().Err(err).Str("user", userID).Msg("Failed to retrieve conversation")
		WriteJSONError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	if err := a.messages.MarkConversationRead(r.Context(), userID, otherID); err != nil {
		// The fetch succeeded; a failed read-receipt update is not worth
		// failing the request over.
		a.logger.Warn().Err(err).Str("user", userID).Msg("Failed to mark conversation read")
	}

	WriteJSON(w, http.StatusOK, historyResponse{Messages: messages})
}

// SendHandler persists a message via the delivery coordinator and returns
// the stored message. Success depends only on persistence; real-time
// delivery to the receiver is best-effort.
func (a *API) SendHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		WriteJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}
	receiverID := r.PathValue("id")
	if receiverID == "" {
		WriteJSONError(w, http.StatusBadRequest, "missing receiver id")
		return
	}

	var draft chat.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if draft.Text == "" && draft.Image == "" && draft.Video == "" {
		WriteJSONError(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	msg, err := a.coordinator.Send(r.Context(), userID, receiverID, draft)
	if err != nil {
		a.logger.Error().Err(err).Str("user", userID).Str("receiver", receiverID).Msg("Failed to send message")
		WriteJSONError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]*chat.Message{"message": msg})
}

// MarkReadHandler marks a single message as read.
func (a *API) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserIDFromContext(r.Context()); !ok {
		WriteJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}
	messageID := r.PathValue("id")
	if messageID == "" {
		WriteJSONError(w, http.StatusBadRequest, "missing message id")
		return
	}

	err := a.messages.MarkRead(r.Context(), messageID)
	if errors.Is(err, chat.ErrNotFound) {
		WriteJSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("message", messageID).Msg("Failed to mark message read")
		WriteJSONError(w, http.StatusInternalServerError, "failed to mark message read")
		return
	}
	WriteJSON(w, http.StatusOK, nil)
}
