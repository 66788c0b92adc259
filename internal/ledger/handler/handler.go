// Package handler exposes the fund's share operations over HTTP. Mutations
// accept an optional Idempotency-Key header; the router wires the guard.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tranche/internal/ledger"
	"tranche/internal/transport/shared"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/requestcontext"
)

type Handler struct {
	service *ledger.Service
	logger  *slog.Logger
}

func New(service *ledger.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the fund routes. The idempotency middleware is applied
// by the caller on the mutation subtree.
func (h *Handler) Register(r chi.Router) {
	r.Route("/fund", func(r chi.Router) {
		r.Post("/mint", h.mint)
		r.Post("/transfer", h.directTransfer)
		r.Post("/transfer/brokered", h.brokeredTransfer)
		r.Post("/transfer/controlled", h.controlledTransfer)
		r.Post("/redeem", h.redeem)
		r.Post("/distribute", h.distribute)
		r.Post("/reserve/deposit", h.deposit)

		r.Get("/balance/{identity}", h.balance)
		r.Get("/supply", h.supply)
		r.Get("/holders", h.holders)
		r.Get("/reserve", h.reserve)
	})
}

func (h *Handler) mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	recipient, err := id.ParseIdentity(req.Recipient)
	if err != nil {
		shared.Error(w, r, h.logger, dErrors.New(dErrors.CodeInvalidRecipient, "invalid recipient"))
		return
	}

	caller := requestcontext.Caller(r.Context())
	result, err := h.service.Mint(r.Context(), caller, recipient, req.Amount)
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	shared.JSON(w, h.logger, http.StatusCreated, mintResponse{
		Recipient: result.Recipient.String(),
		Minted:    result.Minted,
		FeeShares: result.FeeShares,
		Supply:    result.Supply,
	})
}

func (h *Handler) directTransfer(w http.ResponseWriter, r *http.Request) {
	var req directTransferRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	to, err := id.ParseIdentity(req.To)
	if err != nil {
		shared.Error(w, r, h.logger, dErrors.New(dErrors.CodeInvalidRecipient, "invalid recipient"))
		return
	}

	caller := requestcontext.Caller(r.Context())
	if err := h.service.DirectTransfer(r.Context(), caller, to, req.Amount); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	shared.JSON(w, h.logger, http.StatusOK, statusResponse{Status: "transferred"})
}

func (h *Handler) brokeredTransfer(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.service.BrokeredTransfer)
}

func (h *Handler) controlledTransfer(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.service.ControlledTransfer)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, caller, from, to id.Identity, amount uint64) error) {
	var req transferRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	from, err := id.ParseIdentity(req.From)
	if err != nil {
		shared.Error(w, r, h.logger, dErrors.New(dErrors.CodeInvalidRecipient, "invalid source holder"))
		return
	}
	to, err := id.ParseIdentity(req.To)
	if err != nil {
		shared.Error(w, r, h.logger, dErrors.New(dErrors.CodeInvalidRecipient, "invalid recipient"))
		return
	}

	caller := requestcontext.Caller(r.Context())
	if err := apply(r.Context(), caller, from, to, req.Amount); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	shared.JSON(w, h.logger, http.StatusOK, statusResponse{Status: "transferred"})
}

// redeem burns shares from the authenticated caller's own position.
func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	caller := requestcontext.Caller(r.Context())
	result, err := h.service.Redeem(r.Context(), caller, req.Shares)
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	shared.JSON(w, h.logger, http.StatusOK, redeemResponse{
		Holder:  result.Holder.String(),
		Shares:  result.Shares,
		Payout:  result.Payout,
		Supply:  result.Supply,
		Reserve: result.Reserve,
	})
}

func (h *Handler) distribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	caller := requestcontext.Caller(r.Context())
	result, err := h.service.DistributeProfit(r.Context(), caller, req.Percent)
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	payouts := make([]payoutResponse, 0, len(result.Payouts))
	for _, payout := range result.Payouts {
		payouts = append(payouts, payoutResponse{
			Identity: payout.Identity.String(),
			Amount:   payout.Amount,
		})
	}
	shared.JSON(w, h.logger, http.StatusOK, distributeResponse{
		Total:   result.Total,
		Payouts: payouts,
		Reserve: result.Reserve,
	})
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	caller := requestcontext.Caller(r.Context())
	reserve, err := h.service.Deposit(r.Context(), caller, req.Amount)
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	shared.JSON(w, h.logger, http.StatusOK, reserveResponse{Reserve: reserve})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	holder, err := id.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}

	balance, err := h.service.Balance(r.Context(), holder)
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	shared.JSON(w, h.logger, http.StatusOK, balanceResponse{
		Identity: holder.String(),
		Balance:  balance,
	})
}

func (h *Handler) supply(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context())
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	shared.JSON(w, h.logger, http.StatusOK, supplyResponse{
		TotalSupply: snap.TotalSupply,
		Holders:     snap.Holders,
	})
}

func (h *Handler) holders(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.service.Holdings(r.Context())
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	out := make([]holdingResponse, 0, len(holdings))
	for _, holding := range holdings {
		out = append(out, holdingResponse{
			Identity: holding.Identity.String(),
			Balance:  holding.Balance,
		})
	}
	shared.JSON(w, h.logger, http.StatusOK, out)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context())
	if err != nil {
		shared.Error(w, r, h.logger, err)
		return
	}
	shared.JSON(w, h.logger, http.StatusOK, reserveResponse{Reserve: snap.Reserve})
}
