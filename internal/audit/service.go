// Package audit produces full disclosures for auditors and records each one
// in the append-only audit log before it is released.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	"rxvc/internal/disclosure"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	platformaudit "rxvc/pkg/platform/audit"
	"rxvc/pkg/platform/sentinel"
)

// SinkCollaborator names the audit log in wrapped errors.
const SinkCollaborator = "audit log"

const storeCollaborator = "credential store"

var tracer = otel.Tracer("rxvc/internal/audit")

// FullDisclosure is a prescription revealed through the audit frame.
type FullDisclosure struct {
	disclosure.Disclosure
}

// Service derives full disclosures. It assumes the auditor's token was
// validated upstream.
type Service struct {
	store       ports.CredentialStore
	disclosures *disclosure.Service
	sink        platformaudit.Store
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
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

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an audit disclosure service appending to sink.
func New(store ports.CredentialStore, disclosures *disclosure.Service, sink platformaudit.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		disclosures: disclosures,
		sink:        sink,
		logger:      slog.Default(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeriveFullDisclosure reveals the prescription through the audit frame and
// appends a log entry. If the entry cannot be appended no disclosure is
// returned.
func (s *Service) DeriveFullDisclosure(
	ctx context.Context,
	auditor domain.DID,
	prescriptionID string,
	reason string,
	token string,
) (FullDisclosure, LogEntry, error) {
	ctx, span := tracer.Start(ctx, "audit.DeriveFullDisclosure")
	defer span.End()
	span.SetAttributes(attribute.String("prescription.id", prescriptionID))

	fail := func(outcome string, err error) (FullDisclosure, LogEntry, error) {
		s.metrics.IncDisclosure(outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return FullDisclosure{}, LogEntry{}, err
	}

	reason = strings.TrimSpace(reason)
	switch {
	case auditor.IsNil():
		return fail("rejected", dErrors.New(dErrors.CodeInvalidInput, "auditor is required"))
	case prescriptionID == "":
		return fail("rejected", dErrors.New(dErrors.CodeInvalidInput, "prescription id is required"))
	case reason == "":
		return fail("rejected", dErrors.New(dErrors.CodeInvalidInput, "an audit reason is required"))
	case token == "":
		return fail("rejected", dErrors.New(dErrors.CodeUnauthorized, "authorization token is required"))
	}

	record, err := s.store.FindByID(ctx, prescriptionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return fail("not_found", dErrors.NotFound(storeCollaborator, prescriptionID))
	}
	if err != nil {
		return fail("error", dErrors.Unavailable(storeCollaborator, prescriptionID, err))
	}
	if record.Type != models.TypePrescription {
		return fail("rejected", dErrors.Newf(dErrors.CodeInvalidInput, "credential %s is not a prescription", prescriptionID))
	}

	disc, err := s.disclosures.DeriveRecord(ctx, record, disclosure.FrameAudit)
	if err != nil {
		return fail("error", err)
	}

	entry := LogEntry{
		ID:               s.newID(),
		Auditor:          auditor,
		PrescriptionID:   prescriptionID,
		Reason:           reason,
		Timestamp:        s.now().UTC().Truncate(time.Microsecond),
		FrameVersion:     disc.FrameVersion,
		TokenFingerprint: Fingerprint(token),
	}
	if entry.EntryHash, err = entry.ComputeHash(); err != nil {
		return fail("error", dErrors.Wrap(err, dErrors.CodeInternal, "hash audit entry"))
	}

	if err := s.sink.Append(ctx, entry.ToEvent()); err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: audit entry not persisted, disclosure withheld",
			"auditor", auditor.String(),
			"prescription_id", prescriptionID,
			"entry_id", entry.ID,
			"error", err,
		)
		return fail("withheld", dErrors.Unavailable(SinkCollaborator, entry.ID, err))
	}

	s.metrics.IncDisclosure("disclosed")
	s.logger.InfoContext(ctx, "full disclosure released",
		"auditor", auditor.String(),
		"prescription_id", prescriptionID,
		"entry_id", entry.ID,
	)
	return FullDisclosure{Disclosure: disc}, entry, nil
}

// Entries lists the log entries recorded for a prescription when the sink
// can read back.
func (s *Service) Entries(ctx context.Context, prescriptionID string) ([]LogEntry, error) {
	lister, ok := s.sink.(platformaudit.Lister)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "audit sink does not support listing")
	}
	events, err := lister.ListBySubject(ctx, prescriptionID)
	if err != nil {
		return nil, dErrors.Unavailable(SinkCollaborator, prescriptionID, err)
	}
	var out []LogEntry
	for _, ev := range events {
		if ev.Action == string(platformaudit.EventAuditFullDisclosure) {
			out = append(out, FromEvent(ev))
		}
	}
	return out, nil
}
