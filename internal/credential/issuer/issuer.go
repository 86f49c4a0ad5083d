// Package issuer validates claims and produces signed credentials.
package issuer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rxvc/internal/credential/issuer/schema"
	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	"rxvc/internal/credential/resolver"
	"rxvc/internal/identity"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
)

var tracer = otel.Tracer("rxvc/internal/credential/issuer")

// IssueRequest carries everything needed to sign one credential. Selection
// comes from SelectKey (or an earlier resolution the caller cached).
type IssueRequest struct {
	Type      models.CredentialType
	Issuer    domain.DID
	Subject   domain.DID
	Claims    map[string]any
	Reference string
	Selection models.Selection
}

// Service issues credentials. It calls the signer exactly once per
// successful Issue and never for rejected claims.
type Service struct {
	signer   ports.Signer
	resolver identity.Resolver
	schemas  *schema.Validator
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
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

// WithClock overrides the issuance clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchemas overrides the claim schemas.
func WithSchemas(v *schema.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.schemas = v
		}
	}
}

// New creates an issuer.
func New(signer ports.Signer, res identity.Resolver, opts ...Option) *Service {
	s := &Service{
		signer:   signer,
		resolver: res,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.schemas == nil {
		s.schemas = schema.MustNew()
	}
	return s
}

// SelectKey lists the signer's keys for issuer and resolves its identity
// document, then picks the verification method and suite to sign with.
// Keys come first: a KMS that provisions on demand publishes the document.
func (s *Service) SelectKey(ctx context.Context, issuer domain.DID) (models.Selection, error) {
	keys, err := s.signer.Keys(ctx, issuer)
	if err != nil {
		return models.Selection{}, dErrors.FromCollaborator(ports.SignerCollaborator, issuer.String(), err)
	}
	doc, err := s.resolver.Resolve(ctx, issuer)
	if err != nil {
		return models.Selection{}, dErrors.FromCollaborator(identity.Collaborator, issuer.String(), err)
	}
	return resolver.ResolveSigningKey(doc, keys)
}

// Issue validates req and signs the credential it describes.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (models.Credential, error) {
	ctx, span := tracer.Start(ctx, "issuer.Issue", trace.WithAttributes(
		attribute.String("credential.type", req.Type.String()),
		attribute.String("credential.suite", req.Selection.Suite.String()),
	))
	defer span.End()

	subject, err := s.validate(req)
	if err != nil {
		s.metrics.IncRejected(req.Type.String(), string(dErrors.CodeOf(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return models.Credential{}, err
	}

	unsigned := models.Credential{
		Context:           append([]string(nil), models.DefaultContexts...),
		ID:                models.NewCredentialID(),
		Type:              []string{"VerifiableCredential", req.Type.String()},
		Issuer:            req.Issuer.String(),
		IssuanceDate:      s.now().UTC().Truncate(time.Second),
		CredentialSubject: subject,
	}

	start := time.Now()
	proof, err := s.signer.Sign(ctx, unsigned, req.Selection.VerificationMethod, req.Selection.Suite)
	s.metrics.ObserveSign(req.Selection.Suite.String(), time.Since(start))
	if err != nil {
		err = dErrors.FromCollaborator(ports.SignerCollaborator, req.Selection.VerificationMethod, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "sign failed")
		return models.Credential{}, err
	}
	if proof.Type != req.Selection.Suite {
		return models.Credential{}, dErrors.Newf(dErrors.CodeInternal,
			"signer returned a %s proof for a %s request", proof.Type, req.Selection.Suite)
	}

	signed := unsigned
	signed.Proof = &proof
	s.metrics.IncIssued(req.Type.String(), proof.Type.String())
	span.SetAttributes(attribute.String("credential.id", signed.ID))
	s.logger.InfoContext(ctx, "credential issued",
		"credential_id", signed.ID,
		"type", req.Type.String(),
		"issuer", req.Issuer.String(),
		"suite", proof.Type.String(),
	)
	return signed, nil
}

// validate checks the request and returns the credentialSubject to sign.
func (s *Service) validate(req IssueRequest) (models.Subject, error) {
	if _, err := models.ParseCredentialType(req.Type.String()); err != nil {
		return nil, err
	}
	if req.Issuer.IsNil() || req.Subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer and subject are required")
	}
	if req.Selection.VerificationMethod == "" || domain.ControllerOf(req.Selection.VerificationMethod) != req.Issuer {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"verification method %q is not controlled by %s", req.Selection.VerificationMethod, req.Issuer)
	}
	if req.Selection.Suite != models.SuiteBBS && req.Selection.Suite != models.SuiteJWS {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported signature suite %q", req.Selection.Suite)
	}

	violations, err := s.schemas.Validate(req.Type, req.Claims)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "claim validation failed")
	}
	if len(violations) > 0 {
		return nil, invalidClaims(violations)
	}

	claims, err := models.ToClaims(req.Claims)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidClaims, "claims are not serializable")
	}
	subject := models.Subject(claims)
	if violations := s.semanticChecks(req, subject); len(violations) > 0 {
		return nil, invalidClaims(violations)
	}
	subject["id"] = req.Subject.String()
	return subject, nil
}

// semanticChecks covers the rules a schema cannot express.
func (s *Service) semanticChecks(req IssueRequest, subject models.Subject) []schema.Violation {
	var out []schema.Violation
	now := s.now()

	switch req.Type {
	case models.TypePrescription:
		c, err := models.FromSubject[models.PrescriptionClaims](subject)
		if err != nil {
			return []schema.Violation{{Field: "(root)", Reason: err.Error()}}
		}
		if !c.ValidUntil.After(now) {
			out = append(out, schema.Violation{Field: "validUntil", Reason: "must be in the future"})
		}
		if c.Quantity <= 0 {
			out = append(out, schema.Violation{Field: "quantity", Reason: "must be greater than zero"})
		}
	case models.TypeDispensing:
		c, err := models.FromSubject[models.DispensingClaims](subject)
		if err != nil {
			return []schema.Violation{{Field: "(root)", Reason: err.Error()}}
		}
		if c.QuantityDispensed <= 0 {
			out = append(out, schema.Violation{Field: "quantityDispensed", Reason: "must be greater than zero"})
		}
		if c.PrescriptionID != req.Reference {
			out = append(out, schema.Violation{Field: "prescriptionId", Reason: "does not match the referenced prescription"})
		}
	case models.TypeConfirmation:
		c, err := models.FromSubject[models.ConfirmationClaims](subject)
		if err != nil {
			return []schema.Violation{{Field: "(root)", Reason: err.Error()}}
		}
		if c.DispensingID != req.Reference {
			out = append(out, schema.Violation{Field: "dispensingId", Reason: "does not match the referenced dispensing credential"})
		}
	}
	return out
}

func invalidClaims(violations []schema.Violation) error {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.String())
	}
	return dErrors.Newf(dErrors.CodeInvalidClaims, "invalid claims: %s", strings.Join(parts, "; "))
}
