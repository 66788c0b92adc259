package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"tranche/internal/ledger/metrics"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	audit "tranche/pkg/platform/audit"
	"tranche/pkg/requestcontext"
)

// Guard answers the governance questions the ledger asks before mutating.
type Guard interface {
	IsActive(ctx context.Context) (bool, error)
	Issuer(ctx context.Context) (id.Identity, error)
	Broker(ctx context.Context) (id.Identity, error)
	RequireOwner(ctx context.Context, caller id.Identity) error
}

// Service implements the fund's share operations. A single mutex serializes
// every mutation: amounts are interdependent (supply, balances, reserve) and
// the arithmetic must observe a consistent snapshot.
type Service struct {
	mu             sync.Mutex
	store          Store
	guard          Guard
	feePercent     uint64
	feeBeneficiary id.Identity
	emitter        audit.Emitter
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, guard Guard, feePercent uint64, feeBeneficiary id.Identity, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if guard == nil {
		return nil, errors.New("governance guard is required")
	}
	if feePercent == 0 || feePercent >= 100 {
		return nil, errors.New("fee percent must be between 1 and 99")
	}
	if feeBeneficiary.IsNil() {
		return nil, errors.New("fee beneficiary is required")
	}
	svc := &Service{
		store:          store,
		guard:          guard,
		feePercent:     feePercent,
		feeBeneficiary: feeBeneficiary,
		emitter:        audit.NopEmitter{},
		logger:         slog.Default(),
		tracer:         otel.Tracer("tranche/ledger"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Mint creates amount shares for recipient plus protocol fee shares for the
// beneficiary, sized so the fee is feePercent of everything minted. Only the
// issuer may mint, and only while the fund is active. The beneficiary joins
// the holder registry even when the computed fee rounds to zero.
func (s *Service) Mint(ctx context.Context, caller, recipient id.Identity, amount uint64) (*MintResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Mint")
	defer span.End()

	if err := s.requireIssuer(ctx, caller); err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx); err != nil {
		return nil, err
	}
	if recipient.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidRecipient, "mint recipient must not be nil")
	}
	if amount == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "mint amount must be positive")
	}

	// fee / (amount + fee) == feePercent / 100, truncating.
	fee, err := mulDiv(amount, s.feePercent, 100-s.feePercent)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *MintResult
	err = s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.credit(ctx, tx, recipient, amount); err != nil {
			return err
		}
		if err := s.credit(ctx, tx, s.feeBeneficiary, fee); err != nil {
			return err
		}

		supply, err := tx.TotalSupply(ctx)
		if err != nil {
			return err
		}
		minted, err := addChecked(amount, fee)
		if err != nil {
			return err
		}
		supply, err = addChecked(supply, minted)
		if err != nil {
			return err
		}
		if err := tx.SetTotalSupply(ctx, supply); err != nil {
			return err
		}

		result = &MintResult{Recipient: recipient, Minted: amount, FeeShares: fee, Supply: supply}

		// Both credited parties get an issuance event and a matching
		// from-null transfer event; the nil From marks shares entering
		// circulation.
		for _, leg := range []struct {
			holder id.Identity
			amount uint64
		}{
			{recipient, amount},
			{s.feeBeneficiary, fee},
		} {
			if err := s.audit(ctx, audit.Event{
				Action:  audit.ActionSharesIssued,
				Actor:   caller,
				Subject: leg.holder,
				To:      leg.holder,
				Amount:  leg.amount,
			}); err != nil {
				return err
			}
			if err := s.audit(ctx, audit.Event{
				Action:  audit.ActionSharesTransferred,
				Actor:   caller,
				Subject: leg.holder,
				To:      leg.holder,
				Amount:  leg.amount,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SharesMinted.Add(float64(amount))
		s.metrics.FeeSharesMinted.Add(float64(fee))
	}
	s.logger.InfoContext(ctx, "shares minted",
		"recipient", recipient, "amount", amount, "fee", fee,
		"request_id", requestcontext.RequestID(ctx))
	return result, nil
}

// DirectTransfer always fails: holders cannot move shares themselves. Every
// transfer goes through the broker or the issuer. The ledger is never touched.
func (s *Service) DirectTransfer(ctx context.Context, caller, to id.Identity, amount uint64) error {
	_, span := s.tracer.Start(ctx, "ledger.DirectTransfer")
	defer span.End()

	return dErrors.New(dErrors.CodeOperationDisabled, "direct transfers are disabled; use a brokered transfer")
}

// BrokeredTransfer moves shares between holders on the broker's authority.
// It stays available while the fund is inactive so positions can unwind.
func (s *Service) BrokeredTransfer(ctx context.Context, caller, from, to id.Identity, amount uint64) error {
	ctx, span := s.tracer.Start(ctx, "ledger.BrokeredTransfer")
	defer span.End()

	broker, err := s.guard.Broker(ctx)
	if err != nil {
		return err
	}
	if caller != broker {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the fund broker")
	}
	// The broker path moves balances between existing positions and never
	// enrolls the recipient in the holder registry.
	return s.transfer(ctx, caller, from, to, amount, false)
}

// ControlledTransfer moves shares on the issuer's authority. Unlike brokered
// transfers it is gated on the active flag and enrolls the recipient in the
// holder registry.
func (s *Service) ControlledTransfer(ctx context.Context, caller, from, to id.Identity, amount uint64) error {
	ctx, span := s.tracer.Start(ctx, "ledger.ControlledTransfer")
	defer span.End()

	if err := s.requireIssuer(ctx, caller); err != nil {
		return err
	}
	if err := s.requireActive(ctx); err != nil {
		return err
	}
	return s.transfer(ctx, caller, from, to, amount, true)
}

func (s *Service) transfer(ctx context.Context, actor, from, to id.Identity, amount uint64, register bool) error {
	if from.IsNil() || to.IsNil() {
		return dErrors.New(dErrors.CodeInvalidRecipient, "transfer endpoints must not be nil")
	}
	if from == to {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer endpoints must differ")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		fromBalance, err := tx.Balance(ctx, from)
		if err != nil {
			return err
		}
		remaining, err := subChecked(fromBalance, amount)
		if err != nil {
			return dErrors.Newf(dErrors.CodeInsufficientBalance,
				"holder has %d shares, transfer needs %d", fromBalance, amount)
		}
		if err := tx.SetBalance(ctx, from, remaining); err != nil {
			return err
		}
		if register {
			if err := s.credit(ctx, tx, to, amount); err != nil {
				return err
			}
		} else if err := s.addBalance(ctx, tx, to, amount); err != nil {
			return err
		}

		return s.audit(ctx, audit.Event{
			Action:  audit.ActionSharesTransferred,
			Actor:   actor,
			Subject: from,
			From:    from,
			To:      to,
			Amount:  amount,
		})
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.SharesTransferred.Add(float64(amount))
	}
	s.logger.InfoContext(ctx, "shares transferred",
		"from", from, "to", to, "amount", amount,
		"request_id", requestcontext.RequestID(ctx))
	return nil
}

// Redeem burns shares from the caller's own position and pays out the
// matching slice of the reserve, truncating in the fund's favor. Redemption
// is self-service and stays available while the fund is inactive.
func (s *Service) Redeem(ctx context.Context, caller id.Identity, shares uint64) (*RedeemResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Redeem")
	defer span.End()

	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	if shares == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "redemption amount must be positive")
	}
	holder := caller

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *RedeemResult
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		balance, err := tx.Balance(ctx, holder)
		if err != nil {
			return err
		}
		remaining, err := subChecked(balance, shares)
		if err != nil {
			return dErrors.Newf(dErrors.CodeInsufficientBalance,
				"holder has %d shares, redemption needs %d", balance, shares)
		}

		supply, err := tx.TotalSupply(ctx)
		if err != nil {
			return err
		}
		if supply == 0 {
			return dErrors.New(dErrors.CodeInvariantViolation, "redemption against zero supply")
		}
		reserve, err := tx.Reserve(ctx)
		if err != nil {
			return err
		}
		if reserve == 0 {
			return dErrors.New(dErrors.CodeEmptyReserve, "reserve is empty")
		}

		payout, err := mulDiv(shares, reserve, supply)
		if err != nil {
			return err
		}

		if err := tx.SetBalance(ctx, holder, remaining); err != nil {
			return err
		}
		newSupply, err := subChecked(supply, shares)
		if err != nil {
			return err
		}
		if err := tx.SetTotalSupply(ctx, newSupply); err != nil {
			return err
		}
		newReserve, err := subChecked(reserve, payout)
		if err != nil {
			return err
		}
		if err := tx.SetReserve(ctx, newReserve); err != nil {
			return err
		}

		result = &RedeemResult{
			Holder:  holder,
			Shares:  shares,
			Payout:  payout,
			Supply:  newSupply,
			Reserve: newReserve,
		}
		if err := s.audit(ctx, audit.Event{
			Action:  audit.ActionSharesRedeemed,
			Actor:   caller,
			Subject: holder,
			From:    holder,
			Amount:  shares,
		}); err != nil {
			return err
		}
		return s.audit(ctx, audit.Event{
			Action:  audit.ActionReservePaidOut,
			Actor:   caller,
			Subject: holder,
			To:      holder,
			Amount:  payout,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SharesRedeemed.Add(float64(result.Shares))
		s.metrics.ReservePaidOut.Add(float64(result.Payout))
	}
	s.logger.InfoContext(ctx, "shares redeemed",
		"holder", holder, "shares", shares, "payout", result.Payout,
		"request_id", requestcontext.RequestID(ctx))
	return result, nil
}

// DistributeProfit pays percent of the reserve across the holder registry,
// pro rata by balance in registration order. Per-holder amounts truncate;
// the truncation remainder stays in the reserve. Zero-balance holders keep
// their registry slot and receive a zero payout.
func (s *Service) DistributeProfit(ctx context.Context, caller id.Identity, percent uint64) (*DistributionResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.DistributeProfit")
	defer span.End()

	if err := s.guard.RequireOwner(ctx, caller); err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx); err != nil {
		return nil, err
	}
	if percent == 0 || percent >= 100 {
		return nil, dErrors.New(dErrors.CodeInvalidPercentage, "distribution percent must be between 1 and 99")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *DistributionResult
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		supply, err := tx.TotalSupply(ctx)
		if err != nil {
			return err
		}
		if supply == 0 {
			return dErrors.New(dErrors.CodeNoHolders, "no shares outstanding")
		}
		reserve, err := tx.Reserve(ctx)
		if err != nil {
			return err
		}
		if reserve == 0 {
			return dErrors.New(dErrors.CodeEmptyReserve, "reserve is empty")
		}

		total, err := mulDiv(reserve, percent, 100)
		if err != nil {
			return err
		}

		holders, err := tx.Holders(ctx)
		if err != nil {
			return err
		}

		payouts := make([]Payout, 0, len(holders))
		var paid uint64
		for _, holder := range holders {
			balance, err := tx.Balance(ctx, holder)
			if err != nil {
				return err
			}
			share, err := mulDiv(balance, total, supply)
			if err != nil {
				return err
			}
			payouts = append(payouts, Payout{Identity: holder, Amount: share})
			paid, err = addChecked(paid, share)
			if err != nil {
				return err
			}
		}

		newReserve, err := subChecked(reserve, paid)
		if err != nil {
			return err
		}
		if err := tx.SetReserve(ctx, newReserve); err != nil {
			return err
		}

		result = &DistributionResult{Total: paid, Payouts: payouts, Reserve: newReserve}
		return s.audit(ctx, audit.Event{
			Action:  audit.ActionProfitDistributed,
			Actor:   caller,
			Subject: caller,
			Amount:  paid,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Distributions.Inc()
		s.metrics.UnitsDistributed.Add(float64(result.Total))
	}
	s.logger.InfoContext(ctx, "profit distributed",
		"percent", percent, "paid", result.Total, "holders", len(result.Payouts),
		"request_id", requestcontext.RequestID(ctx))
	return result, nil
}

// Deposit adds external returns to the reserve. Any caller may pay in, and
// deposits are allowed while the fund is inactive so incoming settlements
// are never turned away.
func (s *Service) Deposit(ctx context.Context, caller id.Identity, amount uint64) (uint64, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Deposit")
	defer span.End()

	if amount == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "deposit amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var newReserve uint64
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		reserve, err := tx.Reserve(ctx)
		if err != nil {
			return err
		}
		newReserve, err = addChecked(reserve, amount)
		if err != nil {
			return err
		}
		if err := tx.SetReserve(ctx, newReserve); err != nil {
			return err
		}
		return s.audit(ctx, audit.Event{
			Action:  audit.ActionReserveReceived,
			Actor:   caller,
			Subject: caller,
			Amount:  amount,
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "reserve deposit",
		"amount", amount, "reserve", newReserve,
		"request_id", requestcontext.RequestID(ctx))
	return newReserve, nil
}

// Balance returns a holder's current share balance.
func (s *Service) Balance(ctx context.Context, holder id.Identity) (uint64, error) {
	var balance uint64
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		balance, err = tx.Balance(ctx, holder)
		return err
	})
	return balance, err
}

// Snapshot returns the fund's aggregate state in one consistent read.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		supply, err := tx.TotalSupply(ctx)
		if err != nil {
			return err
		}
		reserve, err := tx.Reserve(ctx)
		if err != nil {
			return err
		}
		holders, err := tx.Holders(ctx)
		if err != nil {
			return err
		}
		snap = Snapshot{TotalSupply: supply, Reserve: reserve, Holders: len(holders)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Holdings returns every registered holder with its balance, in
// registration order.
func (s *Service) Holdings(ctx context.Context) ([]Holding, error) {
	var holdings []Holding
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		holders, err := tx.Holders(ctx)
		if err != nil {
			return err
		}
		holdings = make([]Holding, 0, len(holders))
		for _, holder := range holders {
			balance, err := tx.Balance(ctx, holder)
			if err != nil {
				return err
			}
			holdings = append(holdings, Holding{Identity: holder, Balance: balance})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

// credit adds shares to a holder and registers it on first contact. The
// registration happens even for a zero credit so fee beneficiaries appear
// in the registry from their first mint.
func (s *Service) credit(ctx context.Context, tx Tx, holder id.Identity, amount uint64) error {
	registered, err := tx.HasHolder(ctx, holder)
	if err != nil {
		return err
	}
	if !registered {
		if err := tx.AppendHolder(ctx, holder); err != nil {
			return err
		}
	}
	return s.addBalance(ctx, tx, holder, amount)
}

// addBalance adds shares to a holder without touching the registry.
func (s *Service) addBalance(ctx context.Context, tx Tx, holder id.Identity, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := tx.Balance(ctx, holder)
	if err != nil {
		return err
	}
	balance, err = addChecked(balance, amount)
	if err != nil {
		return err
	}
	return tx.SetBalance(ctx, holder, balance)
}

func (s *Service) requireIssuer(ctx context.Context, caller id.Identity) error {
	issuer, err := s.guard.Issuer(ctx)
	if err != nil {
		return err
	}
	if caller != issuer {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the fund issuer")
	}
	return nil
}

func (s *Service) requireActive(ctx context.Context) error {
	active, err := s.guard.IsActive(ctx)
	if err != nil {
		return err
	}
	if !active {
		return dErrors.New(dErrors.CodeInactive, "fund is not active")
	}
	return nil
}

// audit publishes inside the ledger transaction: if the trail cannot be
// written the mutation does not commit.
func (s *Service) audit(ctx context.Context, event audit.Event) error {
	event.RequestID = requestcontext.RequestID(ctx)
	event.Device = requestcontext.Device(ctx)
	return s.emitter.Emit(ctx, event)
}
