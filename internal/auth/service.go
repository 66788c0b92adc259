package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	audit "tranche/pkg/platform/audit"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/requestcontext"
	"tranche/pkg/secrets"
)

// AccessTokenTTL bounds how long an issued token stays valid.
const AccessTokenTTL = time.Hour

// CredentialStore persists participant credentials.
type CredentialStore interface {
	Create(ctx context.Context, cred *Credential) error
	FindByIdentity(ctx context.Context, identity id.Identity) (*Credential, error)
}

// TokenIssuer mints access tokens for authenticated identities.
type TokenIssuer interface {
	GenerateAccessToken(caller id.Identity, expiresIn time.Duration) (string, error)
}

// Service orchestrates participant authentication.
type Service struct {
	store   CredentialStore
	tokens  TokenIssuer
	emitter audit.Emitter
	logger  *slog.Logger
}

// Option configures the Service.
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

func New(store CredentialStore, tokens TokenIssuer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	svc := &Service{
		store:   store,
		tokens:  tokens,
		emitter: audit.NopEmitter{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register onboards a new participant: a fresh identity plus a generated
// secret, stored bcrypt-hashed. The plaintext secret is returned once.
func (s *Service) Register(ctx context.Context, label string) (*Registration, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "label is required")
	}

	secret, err := secrets.Generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate secret")
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash secret")
	}

	identity := id.NewIdentity()
	cred := &Credential{
		Identity:   identity,
		SecretHash: hash,
		Label:      label,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
	}

	if err := s.emitter.Emit(ctx, audit.Event{
		Action:    audit.ActionIdentityRegistered,
		Subject:   identity,
		RequestID: requestcontext.RequestID(ctx),
		Device:    requestcontext.Device(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to audit identity registration", "error", err)
	}

	return &Registration{Identity: identity, Secret: secret}, nil
}

// SeedCredential installs a bootstrap credential (owner, issuer, broker,
// fee beneficiary) with a pre-chosen identity. Conflicts are ignored so a
// restart with the same bootstrap config is a no-op.
func (s *Service) SeedCredential(ctx context.Context, identity id.Identity, secret, label string) error {
	if identity.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "bootstrap identity must not be nil")
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return err
	}
	err = s.store.Create(ctx, &Credential{
		Identity:   identity,
		SecretHash: hash,
		Label:      label,
		CreatedAt:  requestcontext.Now(ctx),
	})
	if err != nil && !errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed credential")
	}
	return nil
}

// Authenticate verifies an identity/secret pair and issues an access token.
// Unknown identities and bad secrets return the same unauthorized error so
// callers cannot probe the registry.
func (s *Service) Authenticate(ctx context.Context, identity id.Identity, secret string) (string, error) {
	if identity.IsNil() || secret == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	cred, err := s.store.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	if err := secrets.Verify(secret, cred.SecretHash); err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	token, err := s.tokens.GenerateAccessToken(identity, AccessTokenTTL)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	if err := s.emitter.Emit(ctx, audit.Event{
		Action:    audit.ActionTokenIssued,
		Subject:   identity,
		RequestID: requestcontext.RequestID(ctx),
		Device:    requestcontext.Device(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to audit token issuance", "error", err)
	}

	return token, nil
}
