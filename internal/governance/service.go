package governance

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	audit "tranche/pkg/platform/audit"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/requestcontext"
)

// Service owns the fund's control state. All mutations are serialized so a
// pending ownership transfer cannot race with an approval or role change.
type Service struct {
	mu      sync.Mutex
	store   Store
	emitter audit.Emitter
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("params store is required")
	}
	svc := &Service{
		store:   store,
		emitter: audit.NopEmitter{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Seed installs the bootstrap control state if none exists yet. An already
// seeded store wins: restarts must not roll back governance decisions.
func (s *Service) Seed(ctx context.Context, params Params) error {
	if params.Owner.IsNil() || params.Issuer.IsNil() || params.Broker.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "owner, issuer and broker are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.store.Load(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fund params")
	}
	if err := s.store.Save(ctx, params); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed fund params")
	}
	return nil
}

// Params returns the current control state.
func (s *Service) Params(ctx context.Context) (Params, error) {
	params, err := s.store.Load(ctx)
	if err != nil {
		return Params{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fund params")
	}
	return params, nil
}

// IsActive reports whether gated ledger operations are currently enabled.
func (s *Service) IsActive(ctx context.Context) (bool, error) {
	params, err := s.Params(ctx)
	if err != nil {
		return false, err
	}
	return params.Active, nil
}

// Issuer returns the identity allowed to mint.
func (s *Service) Issuer(ctx context.Context) (id.Identity, error) {
	params, err := s.Params(ctx)
	if err != nil {
		return id.NilIdentity, err
	}
	return params.Issuer, nil
}

// Broker returns the identity allowed to move shares on holders' behalf.
func (s *Service) Broker(ctx context.Context) (id.Identity, error) {
	params, err := s.Params(ctx)
	if err != nil {
		return id.NilIdentity, err
	}
	return params.Broker, nil
}

// RequireOwner fails with an unauthorized error unless caller is the
// current owner.
func (s *Service) RequireOwner(ctx context.Context, caller id.Identity) error {
	params, err := s.Params(ctx)
	if err != nil {
		return err
	}
	if caller != params.Owner {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the fund owner")
	}
	return nil
}

// RequestOwnershipTransfer records candidate as the pending owner. Only the
// current owner may request, and a new request replaces any pending one.
func (s *Service) RequestOwnershipTransfer(ctx context.Context, caller, candidate id.Identity) error {
	if candidate.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "candidate owner must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := s.Params(ctx)
	if err != nil {
		return err
	}
	if caller != params.Owner {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the fund owner")
	}
	if candidate == params.Owner {
		return dErrors.New(dErrors.CodeInvalidInput, "candidate already owns the fund")
	}

	params.PendingOwner = candidate
	if err := s.store.Save(ctx, params); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ownership request")
	}

	s.audit(ctx, audit.Event{
		Action:  audit.ActionOwnershipTransferRequested,
		Actor:   caller,
		Subject: candidate,
	})
	return nil
}

// ApproveOwnershipTransfer completes a pending transfer. Only the pending
// candidate may approve; ownership never moves without the candidate's
// explicit acceptance.
func (s *Service) ApproveOwnershipTransfer(ctx context.Context, caller id.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := s.Params(ctx)
	if err != nil {
		return err
	}
	if params.PendingOwner.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "no ownership transfer is pending")
	}
	if caller != params.PendingOwner {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the pending owner")
	}

	previous := params.Owner
	params.Owner = params.PendingOwner
	params.PendingOwner = id.NilIdentity
	if err := s.store.Save(ctx, params); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ownership approval")
	}

	s.audit(ctx, audit.Event{
		Action:  audit.ActionOwnershipTransferApproved,
		Actor:   caller,
		Subject: caller,
		From:    previous,
		To:      caller,
	})
	return nil
}

// SetActive toggles the gate on mint, controlled transfer and distribution.
func (s *Service) SetActive(ctx context.Context, caller id.Identity, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := s.Params(ctx)
	if err != nil {
		return err
	}
	if caller != params.Owner {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the fund owner")
	}
	if params.Active == active {
		return nil
	}

	params.Active = active
	if err := s.store.Save(ctx, params); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record active flag")
	}

	action := audit.ActionSystemActivated
	if !active {
		action = audit.ActionSystemDeactivated
	}
	s.audit(ctx, audit.Event{Action: action, Actor: caller, Subject: caller})
	return nil
}

// SetIssuer appoints the minting identity.
func (s *Service) SetIssuer(ctx context.Context, caller, issuer id.Identity) error {
	return s.setRole(ctx, caller, issuer, audit.ActionIssuerChanged, func(p *Params, who id.Identity) {
		p.Issuer = who
	})
}

// SetBroker appoints the brokering identity.
func (s *Service) SetBroker(ctx context.Context, caller, broker id.Identity) error {
	return s.setRole(ctx, caller, broker, audit.ActionBrokerChanged, func(p *Params, who id.Identity) {
		p.Broker = who
	})
}

func (s *Service) setRole(ctx context.Context, caller, who id.Identity, action audit.Action, assign func(*Params, id.Identity)) error {
	if who.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "role identity must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := s.Params(ctx)
	if err != nil {
		return err
	}
	if caller != params.Owner {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the fund owner")
	}

	assign(&params, who)
	if err := s.store.Save(ctx, params); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record role change")
	}

	s.audit(ctx, audit.Event{Action: action, Actor: caller, Subject: who})
	return nil
}

func (s *Service) audit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.Device = requestcontext.Device(ctx)
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to audit governance change",
			"action", string(event.Action), "error", err)
	}
}
