// Package handler exposes the authentication endpoints.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tranche/internal/auth"
	"tranche/internal/transport/shared"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

type tokenRequest struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type registerRequest struct {
	Label string `json:"label"`
}

type registerResponse struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

// Handler wires the auth service to HTTP.
type Handler struct {
	service *auth.Service
	logger  *slog.Logger
}

func New(service *auth.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the auth routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/token", h.issueToken)
	r.Post("/auth/register", h.register)
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	identity, err := id.ParseIdentity(req.Identity)
	if err != nil {
		shared.Error(w, r, h.logger, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}

	token, err := h.service.Authenticate(r.Context(), identity, req.Secret)
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	shared.JSON(w, h.logger, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(auth.AccessTokenTTL.Seconds()),
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	reg, err := h.service.Register(r.Context(), req.Label)
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	shared.JSON(w, h.logger, http.StatusCreated, registerResponse{
		Identity: reg.Identity.String(),
		Secret:   reg.Secret,
	})
}
