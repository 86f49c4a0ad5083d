// Package workflowtest assembles an in-memory workflow with the dev KMS for
// service and handler tests.
package workflowtest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rxvc/internal/audit"
	"rxvc/internal/credential/issuer"
	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	"rxvc/internal/credential/store"
	"rxvc/internal/decision"
	"rxvc/internal/disclosure"
	"rxvc/internal/fraud/alerts"
	"rxvc/internal/identity"
	"rxvc/internal/platform/config"
	"rxvc/internal/platform/logger"
	"rxvc/internal/registry"
	"rxvc/internal/registry/auditortoken"
	"rxvc/internal/signer/local"
	"rxvc/internal/workflow"
	"rxvc/pkg/domain"
	"rxvc/pkg/platform/audit/publishers/compliance"
	auditmemory "rxvc/pkg/platform/audit/store/memory"
)

// Parties registered by New.
const (
	Doctor    = domain.DID("did:example:doctor-1")
	Pharmacy  = domain.DID("did:example:pharmacy-1")
	Patient   = domain.DID("did:example:patient-1")
	Insurer   = domain.DID("did:example:insurer-1")
	Auditor   = domain.DID("did:example:auditor-1")
	JWSDoctor = domain.DID("did:example:doctor-jws")
)

const TokenSecret = "workflow-test-secret-0123456789abcdef"

// Start is the harness clock's initial time.
var Start = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// CountingSigner counts Sign calls on the wrapped signer.
type CountingSigner struct {
	ports.Signer
	Signs atomic.Int32
}

func (c *CountingSigner) Sign(ctx context.Context, unsigned models.Credential, vm string, suite models.Suite) (models.Proof, error) {
	c.Signs.Add(1)
	return c.Signer.Sign(ctx, unsigned, vm, suite)
}

// Alerts records published fraud alerts.
type Alerts struct {
	mu   sync.Mutex
	sent []alerts.Alert
}

func (a *Alerts) Publish(_ context.Context, alert alerts.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, alert)
	return nil
}

func (a *Alerts) Sent() []alerts.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]alerts.Alert(nil), a.sent...)
}

// Harness is a wired workflow plus handles on its collaborators.
type Harness struct {
	Service  *workflow.Service
	Clock    *Clock
	KMS      *local.KMS
	Signer   *CountingSigner
	Store    *store.InMemoryStore
	Registry *registry.InMemoryStore
	AuditLog *auditmemory.InMemoryStore
	Tokens   *auditortoken.Service
	Alerts   *Alerts
}

// New wires every component in memory. Doctor, Pharmacy and Patient hold BLS
// keys; JWSDoctor only holds the fallback key.
func New(t testing.TB, opts ...workflow.Option) *Harness {
	t.Helper()
	clock := &Clock{now: Start}
	log := logger.Discard()

	docs := identity.NewStatic()
	kms := local.New(local.WithDocuments(docs), local.WithClock(clock.Now), local.WithLogger(log))
	for _, did := range []domain.DID{Doctor, Pharmacy, Patient} {
		if _, err := kms.Provision(did, models.KeyTypeBls12381G2); err != nil {
			t.Fatalf("provision %s: %v", did, err)
		}
	}
	if _, err := kms.Provision(JWSDoctor, models.KeyTypeJWK); err != nil {
		t.Fatalf("provision %s: %v", JWSDoctor, err)
	}
	signer := &CountingSigner{Signer: kms}

	reg := registry.NewInMemoryStore(
		registry.Actor{DID: Doctor, Role: domain.RoleDoctor, Name: "Dr. Ada Byron", License: "MD-1001", Active: true},
		registry.Actor{DID: JWSDoctor, Role: domain.RoleDoctor, Name: "Dr. Alan Kay", License: "MD-1002", Active: true},
		registry.Actor{DID: Pharmacy, Role: domain.RolePharmacy, Name: "Corner Pharmacy", License: "PH-2001", Active: true},
		registry.Actor{DID: Insurer, Role: domain.RoleInsurer, Name: "Acme Health", Active: true},
		registry.Actor{DID: Auditor, Role: domain.RoleAuditor, Name: "State Board", Active: true, Scopes: []string{auditortoken.ScopeFullDisclosure}},
	)

	engine := config.DefaultEngine()
	catalog, err := disclosure.NewCatalog(engine)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	creds := store.NewInMemoryStore()
	auditLog := auditmemory.NewInMemoryStore()
	disclosures := disclosure.New(signer, catalog, disclosure.WithLogger(log))
	tokens := auditortoken.NewService(TokenSecret, "rxvc-test").WithClock(clock.Now)
	sent := &Alerts{}

	deps := workflow.Deps{
		Store:       creds,
		Registry:    reg,
		Issuer:      issuer.New(signer, docs, issuer.WithClock(clock.Now), issuer.WithLogger(log)),
		Disclosures: disclosures,
		Decisions:   decision.New(creds, reg, engine.FraudWeights, decision.WithClock(clock.Now), decision.WithLogger(log)),
		Audits:      audit.New(creds, disclosures, auditLog, audit.WithClock(clock.Now), audit.WithLogger(log)),
		Tokens:      tokens,
		Policy:      decision.DefaultPolicy{MaxScore: engine.Approval.MaxScore},
		Weights:     engine.FraudWeights,
	}
	base := []workflow.Option{
		workflow.WithCompliance(compliance.New(auditLog, compliance.WithClock(clock.Now))),
		workflow.WithAlerts(sent),
		workflow.WithAuditCounter(auditLog),
		workflow.WithClock(clock.Now),
		workflow.WithLogger(log),
	}

	return &Harness{
		Service:  workflow.New(deps, append(base, opts...)...),
		Clock:    clock,
		KMS:      kms,
		Signer:   signer,
		Store:    creds,
		Registry: reg,
		AuditLog: auditLog,
		Tokens:   tokens,
		Alerts:   sent,
	}
}

// Prescription returns valid claims for a 30-unit prescription valid for 90
// days from the harness clock.
func (h *Harness) Prescription() models.PrescriptionClaims {
	return models.PrescriptionClaims{
		MedicationName: "Amoxicillin",
		Dosage:         "500mg",
		Frequency:      "3x daily",
		Duration:       "10 days",
		Quantity:       30,
		Refills:        0,
		ValidUntil:     h.Clock.Now().Add(90 * 24 * time.Hour),
		Instructions:   "Take with food",
		PatientInfo:    models.PatientInfo{Name: "Grace Hopper", BirthDate: "1986-12-09", InsuranceID: "INS-778899"},
		DoctorInfo:     models.DoctorInfo{Name: "Dr. Ada Byron", LicenseNumber: "MD-1001", Specialization: "General Practice"},
	}
}

// Dispensing returns dispensing claims for quantity units.
func Dispensing(quantity int) models.DispensingClaims {
	return models.DispensingClaims{
		BatchNumber:       "BATCH-42",
		ExpirationDate:    "2028-01-31",
		QuantityDispensed: quantity,
		PharmacyName:      "Corner Pharmacy",
		PharmacistLicense: "PH-2001",
	}
}

// AuditToken issues a valid full-disclosure token for Auditor.
func (h *Harness) AuditToken(t testing.TB) string {
	t.Helper()
	token, err := h.Tokens.Issue(Auditor, time.Hour)
	if err != nil {
		t.Fatalf("issue audit token: %v", err)
	}
	return token
}
