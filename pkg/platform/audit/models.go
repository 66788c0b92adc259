// Package audit defines the audit trail emitted by every state-changing
// ledger operation.
package audit

import (
	"time"

	"github.com/google/uuid"

	id "tranche/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with accounting significance: share
	// movements, reserve payouts, authority changes. These require durable
	// storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: reserve receipts, identity onboarding, token issuance.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	// Actor is the authenticated caller that triggered the operation.
	Actor id.Identity
	// Subject is the holder whose position the event concerns.
	Subject id.Identity
	// From/To describe share or reserve movement. A nil From on a transfer
	// marks issuance (transfer from the null identity).
	From   id.Identity
	To     id.Identity
	Action Action
	Amount uint64
	Reason string
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string
	// Device is the parsed client device summary captured by middleware.
	Device string
}

// Action names a state-changing operation in the audit trail.
type Action string

const (
	// Ledger events.
	ActionSharesIssued      Action = "shares_issued"
	ActionSharesTransferred Action = "shares_transferred"
	ActionSharesRedeemed    Action = "shares_redeemed"
	ActionReservePaidOut    Action = "reserve_paid_out"
	ActionProfitDistributed Action = "profit_distributed"
	ActionReserveReceived   Action = "reserve_received"

	// Governance events.
	ActionOwnershipTransferRequested Action = "ownership_transfer_requested"
	ActionOwnershipTransferApproved  Action = "ownership_transfer_approved"
	ActionSystemActivated            Action = "system_activated"
	ActionSystemDeactivated          Action = "system_deactivated"
	ActionIssuerChanged              Action = "issuer_changed"
	ActionBrokerChanged              Action = "broker_changed"

	// Auth events.
	ActionIdentityRegistered Action = "identity_registered"
	ActionTokenIssued        Action = "token_issued"
)

// eventCategories is the source of truth for routing events to sinks.
var eventCategories = map[Action]EventCategory{
	ActionSharesIssued:               CategoryCompliance,
	ActionSharesTransferred:          CategoryCompliance,
	ActionSharesRedeemed:             CategoryCompliance,
	ActionReservePaidOut:             CategoryCompliance,
	ActionProfitDistributed:          CategoryCompliance,
	ActionReserveReceived:            CategoryOperations,
	ActionOwnershipTransferRequested: CategoryCompliance,
	ActionOwnershipTransferApproved:  CategoryCompliance,
	ActionSystemActivated:            CategoryCompliance,
	ActionSystemDeactivated:          CategoryCompliance,
	ActionIssuerChanged:              CategoryCompliance,
	ActionBrokerChanged:              CategoryCompliance,
	ActionIdentityRegistered:         CategoryOperations,
	ActionTokenIssued:                CategoryOperations,
}

// Category returns the category for the action, defaulting to operations
// for unknown actions so nothing is silently dropped.
func (a Action) Category() EventCategory {
	if cat, ok := eventCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}
