/*
File: internal/api/auth_handlers.go
Description: HTTP handlers for account lifecycle: signup, login, auth check,
and profile update.
*/
// Package api defines the stateless HTTP handlers for the chat service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tinywideclouds/go-chat-service/internal/delivery"
	"github.com/tinywideclouds/go-chat-service/internal/middleware"
	"github.com/tinywideclouds/go-chat-service/pkg/chat"
)

// API holds the dependencies for the stateless HTTP handlers.
type API struct {
	users       chat.UserStore
	messages    chat.MessageStore
	coordinator *delivery.Coordinator
	jwtSecret   string
	tokenTTL    time.Duration
	logger      zerolog.Logger
}

// NewAPI creates a new, stateless API handler.
func NewAPI(
	users chat.UserStore,
	messages chat.MessageStore,
	coordinator *delivery.Coordinator,
	jwtSecret string,
	tokenTTL time.Duration,
	logger zerolog.Logger,
) *API {
	return &API{
		users:       users,
		messages:    messages,
		coordinator: coordinator,
		jwtSecret:   jwtSecret,
		tokenTTL:    tokenTTL,
		logger:      logger,
	}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Gender   string `json:"gender"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *chat.User `json:"user"`
	Token string     `json:"token"`
}

// SignupHandler creates a new account and returns the user with a signed
// token.
func (a *API) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Gender == "" {
		WriteJSONError(w, http.StatusBadRequest, "please fill all required fields")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to hash password")
		WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user := &chat.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Gender:       req.Gender,
		PasswordHash: string(hash),
	}
	if err := a.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, chat.ErrEmailTaken) {
			WriteJSONError(w, http.StatusConflict, "user already exists")
			return
		}
		a.logger.Error().Err(err).Msg("Failed to create user")
		WriteJSONError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := middleware.GenerateToken(a.jwtSecret, user.ID, a.tokenTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to sign token")
		WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	a.logger.Info().Str("user", user.ID).Msg("User created")
	WriteJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

// LoginHandler verifies credentials and returns the user with a signed
// token.
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := a.users.GetByEmail(r.Context(), req.Email)
	if errors.Is(err, chat.ErrNotFound) {
		WriteJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to look up user")
		WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		WriteJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := middleware.GenerateToken(a.jwtSecret, user.ID, a.tokenTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to sign token")
		WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	WriteJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

// CheckAuthHandler returns the authenticated user.
func (a *API) CheckAuthHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		WriteJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	user, err := a.users.GetByID(r.Context(), userID)
	if errors.Is(err, chat.ErrNotFound) {
		WriteJSONError(w, http.StatusUnauthorized, "user not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("user", userID).Msg("Failed to look up user")
		WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]*chat.User{"user": user})
}

// GetUserHandler returns any user's public profile by ID.
func (a *API) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserIDFromContext(r.Context()); !ok {
		WriteJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		WriteJSONError(w, http.StatusBadRequest, "missing user id")
		return
	}

	user, err := a.users.GetByID(r.Context(), id)
	if errors.Is(err, chat.ErrNotFound) {
		WriteJSONError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("user", id).Msg("Failed to look up user")
		WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]*chat.User{"user": user})
}

// DeleteUserHandler removes the authenticated user's account and returns the
// deleted user.
func (a *API) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		WriteJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	user, err := a.users.GetByID(r.Context(), userID)
	if errors.Is(err, chat.ErrNotFound) {
		WriteJSONError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("user", userID).Msg("Failed to look up user")
		WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := a.users.Delete(r.Context(), userID); err != nil {
		a.logger.Error().Err(err).Str("user", userID).Msg("Failed to delete user")
		WriteJSONError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	a.logger.Info().Str("user", userID).Msg("User deleted")
	WriteJSON(w, http.StatusOK, map[string]*chat.User{"user": user})
}

type updateUserRequest struct {
	Name       string `json:"name"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
	Password   string `json:"password"`
}

// UpdateUserHandler applies a partial profile update to the authenticated
// user. Empty fields are left unchanged.
func (a *API) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		WriteJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := a.users.GetByID(r.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Str("user", userID).Msg("Failed to look up user")
		WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Bio != "" {
		user.Bio = req.Bio
	}
	if req.ProfilePic != "" {
		user.ProfilePic = req.ProfilePic
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			a.logger.Error().Err(err).Msg("Failed to hash password")
			WriteJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		user.PasswordHash = string(hash)
	}

	if err := a.users.Update(r.Context(), user); err != nil {
		a.logger.Error().Err(err).Str("user", userID).Msg("Failed to update user")
		WriteJSONError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]*chat.User{"user": user})
}
