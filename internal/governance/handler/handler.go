// Package handler exposes the governance endpoints. All routes require an
// authenticated caller; ownership checks happen in the service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tranche/internal/governance"
	"tranche/internal/transport/shared"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/requestcontext"
)

type paramsResponse struct {
	Owner        string `json:"owner"`
	PendingOwner string `json:"pending_owner,omitempty"`
	Active       bool   `json:"active"`
	Issuer       string `json:"issuer"`
	Broker       string `json:"broker"`
}

type ownershipRequest struct {
	Candidate string `json:"candidate"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type roleRequest struct {
	Identity string `json:"identity"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type Handler struct {
	service *governance.Service
	logger  *slog.Logger
}

func New(service *governance.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/governance", func(r chi.Router) {
		r.Get("/params", h.params)
		r.Post("/ownership/request", h.requestOwnership)
		r.Post("/ownership/approve", h.approveOwnership)
		r.Post("/active", h.setActive)
		r.Post("/issuer", h.setIssuer)
		r.Post("/broker", h.setBroker)
	})
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) {
	params, err := h.service.Params(r.Context())
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	resp := paramsResponse{
		Owner:  params.Owner.String(),
		Active: params.Active,
		Issuer: params.Issuer.String(),
		Broker: params.Broker.String(),
	}
	if !params.PendingOwner.IsNil() {
		resp.PendingOwner = params.PendingOwner.String()
	}
	shared.JSON(w, h.logger, http.StatusOK, resp)
}

func (h *Handler) requestOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	candidate, err := id.ParseIdentity(req.Candidate)
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	caller := requestcontext.Caller(r.Context())
	if err := h.service.RequestOwnershipTransfer(r.Context(), caller, candidate); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	shared.JSON(w, h.logger, http.StatusAccepted, statusResponse{Status: "pending"})
}

func (h *Handler) approveOwnership(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	if err := h.service.ApproveOwnershipTransfer(r.Context(), caller); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	shared.JSON(w, h.logger, http.StatusOK, statusResponse{Status: "transferred"})
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	caller := requestcontext.Caller(r.Context())
	if err := h.service.SetActive(r.Context(), caller, req.Active); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	status := "inactive"
	if req.Active {
		status = "active"
	}
	shared.JSON(w, h.logger, http.StatusOK, statusResponse{Status: status})
}

func (h *Handler) setIssuer(w http.ResponseWriter, r *http.Request) {
	h.setRole(w, r, h.service.SetIssuer)
}

func (h *Handler) setBroker(w http.ResponseWriter, r *http.Request) {
	h.setRole(w, r, h.service.SetBroker)
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, caller, who id.Identity) error) {
	var req roleRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	who, err := id.ParseIdentity(req.Identity)
	if err != nil {
		shared.Error(w, r, h.logger, dErrors.New(dErrors.CodeInvalidInput, "invalid role identity"))
		return
	}

	caller := requestcontext.Caller(r.Context())
	if err := apply(r.Context(), caller, who); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	shared.JSON(w, h.logger, http.StatusOK, statusResponse{Status: "updated"})
}
