package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: prescription issuance, dispensing, claim decisions, audit access.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and forensics.
	// Examples: rejected auditor tokens, high-risk fraud scores.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational visibility.
	// These can be sampled with shorter retention.
	// Examples: role disclosures handed to pharmacies and insurers.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	// ActorID is the DID of the actor that performed the action.
	ActorID string
	// Subject is the credential the action concerns (usually the prescription id).
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// Client is the parsed User-Agent summary of the caller.
	Client string
	// TokenFingerprint is a SHA-256 fingerprint of an authorization token.
	// Raw tokens are never recorded.
	TokenFingerprint string
	// FrameVersion is the disclosure frame version an audit disclosure used.
	FrameVersion string
	// EntryHash is the tamper-evidence hash computed by the producer.
	EntryHash string
	// PrevHash links ledger entries; set by chaining stores only.
	PrevHash string
}

// Store persists audit events. Implementations are append-only: events are
// never edited or deleted once written.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can read back events for a subject.
type Lister interface {
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// Counter is implemented by stores that can count persisted events.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type AuditEvent string

const (
	// Prescription lifecycle
	EventPrescriptionIssued   AuditEvent = "prescription_issued"
	EventPrescriptionVerified AuditEvent = "prescription_verified"
	EventDispensingCreated    AuditEvent = "dispensing_created"
	EventReceiptConfirmed     AuditEvent = "receipt_confirmed"
	EventPrescriptionRevoked  AuditEvent = "prescription_revoked"

	// Claims
	EventClaimVerified AuditEvent = "claim_verified"

	// Disclosure
	EventDisclosureDerived   AuditEvent = "disclosure_derived"
	EventAuditFullDisclosure AuditEvent = "audit_full_disclosure"

	// Fraud
	EventFraudAlertRaised AuditEvent = "fraud_alert_raised"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventPrescriptionIssued:   CategoryCompliance,
	EventDispensingCreated:    CategoryCompliance,
	EventReceiptConfirmed:     CategoryCompliance,
	EventPrescriptionRevoked:  CategoryCompliance,
	EventClaimVerified:        CategoryCompliance,
	EventAuditFullDisclosure:  CategoryCompliance,
	EventFraudAlertRaised:     CategorySecurity,
	EventPrescriptionVerified: CategoryOperations,
	EventDisclosureDerived:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// -----------------------------------------------------------------------------
// Right-sized event types for the compliance and ops publishers
// -----------------------------------------------------------------------------

// ComplianceEvent captures regulatory-significant actions requiring guaranteed persistence.
// Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	ID               string    // Event id (set automatically if empty)
	Timestamp        time.Time // When the event occurred (set automatically if zero)
	ActorID          string    // DID of the acting party (required)
	Subject          string    // Credential id the event concerns
	Action           string    // The action taken (e.g., "claim_verified")
	Decision         string    // Outcome of the action (e.g., "approved", "denied")
	Reason           string    // Free-text reason (audit access)
	RequestID        string    // Correlation ID for request tracing
	Client           string    // Parsed User-Agent summary
	TokenFingerprint string    // Fingerprint of an authorization token
	EntryHash        string    // Tamper-evidence hash over the entry
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		ID:               e.ID,
		Category:         CategoryCompliance,
		Timestamp:        e.Timestamp,
		ActorID:          e.ActorID,
		Subject:          e.Subject,
		Action:           e.Action,
		Decision:         e.Decision,
		Reason:           e.Reason,
		RequestID:        e.RequestID,
		Client:           e.Client,
		TokenFingerprint: e.TokenFingerprint,
		EntryHash:        e.EntryHash,
	}
}

// OpsEvent captures operational events with minimal overhead.
// Events are fire-and-forget with optional sampling.
type OpsEvent struct {
	Timestamp time.Time // When the event occurred (set automatically if zero)
	ActorID   string    // Acting party
	Subject   string    // Entity involved
	Action    string    // Operational action (e.g., "disclosure_derived")
	Decision  string    // Frame name or outcome
	RequestID string    // Correlation ID
}

// Category returns CategoryOperations (always).
func (e OpsEvent) Category() EventCategory { return CategoryOperations }

// ToEvent converts to the stored Event shape.
func (e OpsEvent) ToEvent() Event {
	return Event{
		Category:  CategoryOperations,
		Timestamp: e.Timestamp,
		ActorID:   e.ActorID,
		Subject:   e.Subject,
		Action:    e.Action,
		Decision:  e.Decision,
		RequestID: e.RequestID,
	}
}
