package decision

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	"rxvc/internal/decision/metrics"
	"rxvc/internal/fraud"
	"rxvc/internal/registry"
	dErrors "rxvc/pkg/domain-errors"
)

var tracer = otel.Tracer("rxvc/internal/decision")

const defaultEvidenceTimeout = 5 * time.Second

// Service verifies insurance claims against stored credentials.
type Service struct {
	store           ports.CredentialStore
	registry        registry.Registry
	weights         map[string]int
	metrics         *metrics.Metrics
	logger          *slog.Logger
	now             func() time.Time
	evidenceTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the verification clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvidenceTimeout bounds evidence gathering.
func WithEvidenceTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.evidenceTimeout = d
		}
	}
}

// New creates a claim verification service scoring with weights.
func New(store ports.CredentialStore, reg registry.Registry, weights map[string]int, opts ...Option) *Service {
	s := &Service{
		store:           store,
		registry:        reg,
		weights:         weights,
		logger:          slog.Default(),
		now:             time.Now,
		evidenceTimeout: defaultEvidenceTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyClaim gathers the evidence for req and scores it. A referenced
// credential that does not exist is a NotFound error, never a score.
func (s *Service) VerifyClaim(ctx context.Context, req ClaimRequest) (VerificationProof, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "decision.VerifyClaim", trace.WithAttributes(
		attribute.String("prescription.id", req.PrescriptionID),
		attribute.String("dispensing.id", req.DispensingID),
	))
	defer span.End()

	proof, err := s.verify(ctx, req)
	s.metrics.ObserveVerifyLatency(time.Since(start))
	if err != nil {
		s.metrics.IncOutcome("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		s.logger.WarnContext(ctx, "claim verification failed",
			"prescription_id", req.PrescriptionID,
			"dispensing_id", req.DispensingID,
			"code", string(dErrors.CodeOf(err)),
			"error", err,
		)
		return VerificationProof{}, err
	}

	s.metrics.ObserveScore(proof.FraudScore)
	span.SetAttributes(attribute.Int("fraud.score", proof.FraudScore))
	s.logger.InfoContext(ctx, "claim verified",
		"insurer", req.Insurer.String(),
		"prescription_id", req.PrescriptionID,
		"dispensing_id", req.DispensingID,
		"fraud_score", proof.FraudScore,
		"proof_hash", proof.ProofHash,
	)
	return proof, nil
}

// RecordOutcome counts a policy decision made on a proof.
func (s *Service) RecordOutcome(approved bool) {
	if approved {
		s.metrics.IncOutcome("approved")
		return
	}
	s.metrics.IncOutcome("denied")
}

func (s *Service) verify(ctx context.Context, req ClaimRequest) (VerificationProof, error) {
	if req.PrescriptionID == "" || req.DispensingID == "" {
		return VerificationProof{}, dErrors.New(dErrors.CodeInvalidInput, "prescription and dispensing ids are required")
	}
	if req.ClaimAmount != nil && *req.ClaimAmount < 0 {
		return VerificationProof{}, dErrors.New(dErrors.CodeInvalidInput, "claim amount must not be negative")
	}

	ev, err := s.gatherEvidence(ctx, req)
	if err != nil {
		return VerificationProof{}, err
	}

	rx, err := models.FromSubject[models.PrescriptionClaims](ev.prescription.Credential.CredentialSubject)
	if err != nil {
		return VerificationProof{}, dErrors.Wrap(err, dErrors.CodeInternal, "stored prescription is unreadable")
	}
	disp, err := models.FromSubject[models.DispensingClaims](ev.dispensing.Credential.CredentialSubject)
	if err != nil {
		return VerificationProof{}, dErrors.Wrap(err, dErrors.CodeInternal, "stored dispensing credential is unreadable")
	}

	now := s.now().UTC()
	confirmed := ev.confirmation != nil && ev.confirmation.Status.IsActive()
	result := fraud.Evaluate(fraud.Evidence{
		Stage:              fraud.StageClaim,
		PrescriptionFound:  true,
		PrescriptionStatus: ev.prescription.Status,
		EvaluatedAt:        now,
		IssuanceDate:       ev.prescription.Credential.IssuanceDate,
		ValidUntil:         rx.ValidUntil,
		DoctorAuthorized:   ev.doctorAuthorized,
		PharmacyAuthorized: ev.pharmacyAuthorized,
		PrescribedQuantity: rx.Quantity,
		DispensedQuantity:  disp.QuantityDispensed,
		DispensedAt:        disp.DispensedAt,
		PatientConfirmed:   confirmed,
	}, s.weights)

	proof := VerificationProof{
		PrescriptionExists:    ev.prescription.Status.IsActive(),
		MedicationDispensed:   ev.dispensing.Status.IsActive() && ev.prescription.Status.AtLeastDispensed(),
		DoctorAuthorized:      ev.doctorAuthorized,
		PharmacyAuthorized:    ev.pharmacyAuthorized,
		PatientConfirmed:      confirmed,
		FraudScore:            result.Score,
		FraudBand:             result.Band,
		FailedChecks:          result.Failed,
		VerificationTimestamp: now,
	}

	b := bundle{
		Insurer:               req.Insurer.String(),
		PrescriptionID:        ev.prescription.ID,
		PrescriptionStatus:    ev.prescription.Status.String(),
		PrescriptionProof:     proofValue(ev.prescription.Credential),
		DispensingID:          ev.dispensing.ID,
		DispensingStatus:      ev.dispensing.Status.String(),
		DispensingProof:       proofValue(ev.dispensing.Credential),
		ClaimAmount:           req.ClaimAmount,
		PrescriptionExists:    proof.PrescriptionExists,
		MedicationDispensed:   proof.MedicationDispensed,
		DoctorAuthorized:      proof.DoctorAuthorized,
		PharmacyAuthorized:    proof.PharmacyAuthorized,
		PatientConfirmed:      proof.PatientConfirmed,
		FraudScore:            proof.FraudScore,
		FailedChecks:          proof.FailedChecks,
		VerificationTimestamp: now.Format(time.RFC3339Nano),
	}
	if ev.confirmation != nil {
		b.ConfirmationID = ev.confirmation.ID
	}
	if proof.ProofHash, err = b.hash(); err != nil {
		return VerificationProof{}, dErrors.Wrap(err, dErrors.CodeInternal, "hash evidence")
	}
	return proof, nil
}

func proofValue(c models.Credential) string {
	if c.Proof == nil {
		return ""
	}
	if c.Proof.ProofValue != "" {
		return c.Proof.ProofValue
	}
	return c.Proof.JWS
}
