package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"magbot/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, delivery guarantees and routing.
type EventCategory string

const (
	// CategoryCompliance covers state changes of a registry: initialization,
	// mints, role membership and the linked-registry pointer. These are
	// written synchronously inside the registry transaction.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers pause switches and rejected authorization.
	// Delivery is synchronous like compliance.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine configuration such as approvals and
	// base URI changes. Publishers may buffer these.
	CategoryOperations EventCategory = "operations"
)

// Registry names the registry kind an event belongs to.
type Registry string

const (
	RegistryVerification Registry = "verification"
	RegistryCollateral   Registry = "collateral"
)

// Event is emitted from registry logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	Registry  Registry
	Instance  domain.Account
	Action    string
	// Actor is the caller that performed the action. Zero for bootstrap.
	Actor domain.Account
	// Subject is the account or token the action touched, rendered as text.
	Subject string
	// Attributes carries action-specific detail (token ids, role, uri).
	Attributes map[string]string
	RequestID  string
	ClientIP   string
	Client     string
}

type AuditEvent string

const (
	EventInitialized      AuditEvent = "initialized"
	EventRoleGranted      AuditEvent = "role_granted"
	EventRoleRevoked      AuditEvent = "role_revoked"
	EventTransfer         AuditEvent = "transfer"
	EventSBTMinted        AuditEvent = "sbt_minted"
	EventCollateralMinted AuditEvent = "collateral_minted"
	EventSBTSet           AuditEvent = "sbt_set"

	EventPaused       AuditEvent = "paused"
	EventUnpaused     AuditEvent = "unpaused"
	EventAccessDenied AuditEvent = "access_denied"

	EventBaseURISet       AuditEvent = "base_uri_set"
	EventApproval         AuditEvent = "approval"
	EventApprovalForAll   AuditEvent = "approval_for_all"
	EventMintRejected     AuditEvent = "mint_rejected"
	EventTransferRejected AuditEvent = "transfer_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventInitialized:      CategoryCompliance,
	EventRoleGranted:      CategoryCompliance,
	EventRoleRevoked:      CategoryCompliance,
	EventTransfer:         CategoryCompliance,
	EventSBTMinted:        CategoryCompliance,
	EventCollateralMinted: CategoryCompliance,
	EventSBTSet:           CategoryCompliance,

	EventPaused:       CategorySecurity,
	EventUnpaused:     CategorySecurity,
	EventAccessDenied: CategorySecurity,

	EventBaseURISet:       CategoryOperations,
	EventApproval:         CategoryOperations,
	EventApprovalForAll:   CategoryOperations,
	EventMintRejected:     CategoryOperations,
	EventTransferRejected: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Postgres-backed stores join the transaction
// carried by ctx so events commit with the state change they describe.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister reads back persisted events for one registry instance, oldest first.
type Lister interface {
	ListByInstance(ctx context.Context, instance domain.Account) ([]Event, error)
}
