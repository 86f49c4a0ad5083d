// Package workflow runs the prescription lifecycle across the parties:
// doctor issues, pharmacy verifies and dispenses, patient confirms, insurer
// claims, auditor inspects. Each operation authorizes the actor, delegates
// the credential work to the engine packages and records its audit trail.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rxvc/internal/audit"
	"rxvc/internal/credential/issuer"
	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	"rxvc/internal/decision"
	"rxvc/internal/disclosure"
	"rxvc/internal/fraud/alerts"
	"rxvc/internal/registry"
	"rxvc/internal/registry/auditortoken"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	platformaudit "rxvc/pkg/platform/audit"
	"rxvc/pkg/platform/sentinel"
	"rxvc/pkg/requestcontext"
)

const storeCollaborator = "credential store"

// ComplianceEmitter persists regulatory events. A failed Emit fails the
// operation.
type ComplianceEmitter interface {
	Emit(ctx context.Context, event platformaudit.ComplianceEvent) error
}

// OpsTracker records operational events without blocking.
type OpsTracker interface {
	Track(event platformaudit.OpsEvent)
}

// Deps are the collaborators every Service needs.
type Deps struct {
	Store       ports.CredentialStore
	Registry    registry.Registry
	Issuer      *issuer.Service
	Disclosures *disclosure.Service
	Decisions   *decision.Service
	Audits      *audit.Service
	Tokens      *auditortoken.Service
	Policy      decision.Policy
	Weights     map[string]int
}

// Service implements the workflow operations.
type Service struct {
	Deps

	compliance ComplianceEmitter
	tracker    OpsTracker
	alerts     alerts.Publisher
	counter    platformaudit.Counter
	tx         TxRunner
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCompliance sets the fail-closed compliance publisher.
func WithCompliance(c ComplianceEmitter) Option {
	return func(s *Service) { s.compliance = c }
}

func WithTracker(t OpsTracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithAlerts sets where high-risk dispensing alerts go.
func WithAlerts(p alerts.Publisher) Option {
	return func(s *Service) { s.alerts = p }
}

// WithAuditCounter lets statistics report the number of audit entries.
func WithAuditCounter(c platformaudit.Counter) Option {
	return func(s *Service) { s.counter = c }
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the workflow clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a workflow service.
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		Deps:   deps,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		tx := &LockTx{}
		if snap, ok := s.Store.(Snapshotter); ok {
			tx = NewLockTx(snap)
		}
		s.tx = tx
	}
	if s.Policy == nil {
		s.Policy = decision.DefaultPolicy{MaxScore: 50}
	}
	if s.alerts == nil {
		s.alerts = alerts.LogPublisher{Logger: s.logger}
	}
	return s
}

// requireRole fails with forbidden unless did is an active actor in role.
func (s *Service) requireRole(ctx context.Context, did domain.DID, role domain.Role) error {
	if did.IsNil() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "%s did is required", role)
	}
	ok, err := s.Registry.IsAuthorized(ctx, did, role)
	if err != nil {
		return dErrors.FromCollaborator(registry.Collaborator, did.String(), err)
	}
	if !ok {
		return dErrors.Newf(dErrors.CodeForbidden, "%s is not an authorized %s", did, role)
	}
	return nil
}

// load fetches a record of the expected type.
func (s *Service) load(ctx context.Context, id string, want models.CredentialType) (models.Record, error) {
	if id == "" {
		return models.Record{}, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is required", want)
	}
	rec, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return models.Record{}, storeError(err, id)
	}
	if rec.Type != want {
		return models.Record{}, dErrors.Newf(dErrors.CodeInvalidInput, "credential %s is a %s, not a %s", id, rec.Type, want)
	}
	return rec, nil
}

// storeError translates store sentinels into domain errors.
func storeError(err error, id string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NotFound(storeCollaborator, id)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "credential already recorded for "+id)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, "credential "+id+" cannot move to the requested state")
	}
	return dErrors.FromCollaborator(storeCollaborator, id, err)
}

func (s *Service) emit(ctx context.Context, action platformaudit.AuditEvent, actor domain.DID, subject, outcome, reason string) error {
	if s.compliance == nil {
		return nil
	}
	err := s.compliance.Emit(ctx, platformaudit.ComplianceEvent{
		Timestamp: s.clock(ctx).UTC(),
		ActorID:   actor.String(),
		Subject:   subject,
		Action:    string(action),
		Decision:  outcome,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		Client:    requestcontext.ClientPlatform(ctx),
	})
	if err != nil {
		return dErrors.Unavailable(audit.SinkCollaborator, subject, err)
	}
	return nil
}

func (s *Service) track(ctx context.Context, action platformaudit.AuditEvent, actor domain.DID, subject, outcome string) {
	if s.tracker == nil {
		return
	}
	s.tracker.Track(platformaudit.OpsEvent{
		Timestamp: s.clock(ctx).UTC(),
		ActorID:   actor.String(),
		Subject:   subject,
		Action:    string(action),
		Decision:  outcome,
		RequestID: requestcontext.RequestID(ctx),
	})
}

// issue resolves the issuer's key and signs one credential.
func (s *Service) issue(ctx context.Context, req issuer.IssueRequest) (models.Credential, error) {
	sel, err := s.Issuer.SelectKey(ctx, req.Issuer)
	if err != nil {
		return models.Credential{}, err
	}
	req.Selection = sel
	return s.Issuer.Issue(ctx, req)
}

// clock prefers the time the request started so every record written for
// one request carries the same instant.
func (s *Service) clock(ctx context.Context) time.Time {
	if t, ok := requestcontext.TimeFrom(ctx); ok {
		return t
	}
	return s.now()
}

func (s *Service) timestamp(ctx context.Context) time.Time {
	return s.clock(ctx).UTC().Truncate(time.Second)
}
