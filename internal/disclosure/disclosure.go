package disclosure

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	dErrors "rxvc/pkg/domain-errors"
)

var tracer = otel.Tracer("rxvc/internal/disclosure")

// Disclosure is a projected credential carrying a derived proof, plus the
// record-state flags its frame allows.
type Disclosure struct {
	Frame        FrameName         `json:"frame"`
	FrameVersion string            `json:"frameVersion"`
	Credential   models.Credential `json:"credential"`
	State        *State            `json:"state,omitempty"`
}

// State carries lifecycle facts from the credential record.
type State struct {
	Status    *models.Status `json:"status,omitempty"`
	Dispensed *bool          `json:"dispensed,omitempty"`
	Confirmed *bool          `json:"confirmed,omitempty"`
}

// Service derives disclosures. Revealed content is computed locally; only
// the proof comes from the signer.
type Service struct {
	signer  ports.Signer
	catalog *Catalog
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a disclosure service.
func New(signer ports.Signer, catalog *Catalog, opts ...Option) *Service {
	s := &Service{signer: signer, catalog: catalog, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the frame catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Derive projects signed onto frame and obtains a derived proof for the
// revealed fields. Credentials whose proof cannot be derived fail with
// disclosure_unsupported before the signer is called.
func (s *Service) Derive(ctx context.Context, signed models.Credential, frame FrameName) (Disclosure, error) {
	ctx, span := tracer.Start(ctx, "disclosure.Derive")
	defer span.End()
	span.SetAttributes(attribute.String("disclosure.frame", frame.String()), attribute.String("credential.id", signed.ID))

	if _, err := ParseFrameName(frame.String()); err != nil {
		s.metrics.IncDerivation(frame.String(), "unknown_frame")
		return Disclosure{}, err
	}
	if !signed.IsSigned() {
		s.metrics.IncDerivation(frame.String(), "unsigned")
		return Disclosure{}, dErrors.Newf(dErrors.CodeInvalidInput, "credential %s is not signed", signed.ID)
	}
	if !signed.Proof.Type.SupportsDisclosure() {
		s.metrics.IncDerivation(frame.String(), "unsupported")
		span.SetStatus(codes.Error, "disclosure unsupported")
		return Disclosure{}, dErrors.Newf(dErrors.CodeDisclosureUnsupported,
			"credential %s is signed with %s, which cannot derive partial disclosures", signed.ID, signed.Proof.Type)
	}

	revealed := signed.CredentialSubject.Project(s.catalog.Fields(frame))
	fields := presentFields(revealed, s.catalog.Fields(frame))

	proof, err := s.signer.Derive(ctx, signed, fields)
	if err != nil {
		err = dErrors.FromCollaborator(ports.SignerCollaborator, signed.ID, err)
		s.metrics.IncDerivation(frame.String(), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "derive failed")
		return Disclosure{}, err
	}
	if proof.Type != models.SuiteBBSProof {
		return Disclosure{}, dErrors.Newf(dErrors.CodeInternal, "signer returned a %s proof for a derivation", proof.Type)
	}

	derived := signed
	derived.Context = append([]string(nil), signed.Context...)
	derived.Type = append([]string(nil), signed.Type...)
	derived.CredentialSubject = revealed
	derived.Proof = &proof

	s.metrics.IncDerivation(frame.String(), "ok")
	s.logger.DebugContext(ctx, "disclosure derived",
		"credential_id", signed.ID,
		"frame", frame.String(),
		"revealed", len(fields),
	)
	return Disclosure{
		Frame:        frame,
		FrameVersion: s.catalog.Version(frame),
		Credential:   derived,
	}, nil
}

// DeriveRecord derives from a stored prescription record and attaches the
// state flags the frame reveals.
func (s *Service) DeriveRecord(ctx context.Context, record models.Record, frame FrameName) (Disclosure, error) {
	d, err := s.Derive(ctx, record.Credential, frame)
	if err != nil {
		return Disclosure{}, err
	}
	d.State = stateFor(frame, record.Status)
	return d, nil
}

func stateFor(frame FrameName, status models.Status) *State {
	showStatus, showDispensed, showConfirmed := frame.stateFlags()
	state := &State{}
	if showStatus {
		st := status
		state.Status = &st
	}
	if showDispensed {
		dispensed := status.AtLeastDispensed()
		state.Dispensed = &dispensed
	}
	if showConfirmed {
		confirmed := status == models.StatusConfirmed
		state.Confirmed = &confirmed
	}
	return state
}

// presentFields keeps the frame fields the projection actually revealed.
// fields is sorted, so the result is too.
func presentFields(revealed models.Subject, fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := revealed.Lookup(f); ok {
			out = append(out, f)
		}
	}
	return out
}
