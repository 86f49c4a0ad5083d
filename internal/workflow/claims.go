package workflow

import (
	"context"

	"rxvc/internal/audit"
	"rxvc/internal/credential/models"
	"rxvc/internal/decision"
	"rxvc/internal/disclosure"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	platformaudit "rxvc/pkg/platform/audit"
)

// ClaimDecision is the insurer's answer: the evidence proof, the policy
// verdict and, when the prescription's suite allows it, the insurance view.
type ClaimDecision struct {
	Approved   bool                       `json:"claimApproved"`
	Proof      decision.VerificationProof `json:"verificationProof"`
	Disclosure *disclosure.Disclosure     `json:"disclosure,omitempty"`
}

// VerifyInsuranceClaim verifies the credential chain behind a claim and
// applies the approval policy. A denied claim is a successful result.
func (s *Service) VerifyInsuranceClaim(ctx context.Context, req decision.ClaimRequest) (ClaimDecision, error) {
	if err := s.requireRole(ctx, req.Insurer, domain.RoleInsurer); err != nil {
		return ClaimDecision{}, err
	}
	proof, err := s.Decisions.VerifyClaim(ctx, req)
	if err != nil {
		return ClaimDecision{}, err
	}
	approved := s.Policy.Approve(proof)
	s.Decisions.RecordOutcome(approved)

	out := ClaimDecision{Approved: approved, Proof: proof}
	rx, err := s.load(ctx, req.PrescriptionID, models.TypePrescription)
	if err != nil {
		return ClaimDecision{}, err
	}
	disc, err := s.Disclosures.DeriveRecord(ctx, rx, disclosure.FrameInsurance)
	switch {
	case err == nil:
		out.Disclosure = &disc
	case dErrors.HasCode(err, dErrors.CodeDisclosureUnsupported):
		s.logger.InfoContext(ctx, "insurance view omitted",
			"prescription_id", rx.ID,
			"suite", rx.Suite().String(),
		)
	default:
		return ClaimDecision{}, err
	}

	verdict := "denied"
	if approved {
		verdict = "approved"
	}
	if err := s.emit(ctx, platformaudit.EventClaimVerified, req.Insurer, req.PrescriptionID, verdict, proof.ProofHash); err != nil {
		return ClaimDecision{}, err
	}
	return out, nil
}

// frameRoles maps the frames reachable through GetDisclosure to the role
// allowed to request them. The audit frame is only reachable through
// AuditFullDisclosure.
var frameRoles = map[disclosure.FrameName]domain.Role{
	disclosure.FramePharmacy:  domain.RolePharmacy,
	disclosure.FrameInsurance: domain.RoleInsurer,
}

// GetDisclosure derives frame from a stored credential for actor. The
// credential's subject may request any non-audit frame of their own
// credential; other actors need the frame's role.
func (s *Service) GetDisclosure(ctx context.Context, actor domain.DID, credentialID, frame string) (disclosure.Disclosure, error) {
	name, err := disclosure.ParseFrameName(frame)
	if err != nil {
		return disclosure.Disclosure{}, err
	}
	role, ok := frameRoles[name]
	if !ok {
		return disclosure.Disclosure{}, dErrors.Newf(dErrors.CodeForbidden, "the %s frame requires an audit request", name)
	}
	if credentialID == "" {
		return disclosure.Disclosure{}, dErrors.New(dErrors.CodeInvalidInput, "credential id is required")
	}
	rec, err := s.Store.FindByID(ctx, credentialID)
	if err != nil {
		return disclosure.Disclosure{}, storeError(err, credentialID)
	}
	if rec.Subject != actor.String() {
		if err := s.requireRole(ctx, actor, role); err != nil {
			return disclosure.Disclosure{}, err
		}
	}

	disc, err := s.Disclosures.DeriveRecord(ctx, rec, name)
	if err != nil {
		return disclosure.Disclosure{}, err
	}
	s.track(ctx, platformaudit.EventDisclosureDerived, actor, rec.ID, name.String())
	return disc, nil
}

// AuditRequest is an auditor asking for the full view of a prescription.
type AuditRequest struct {
	Auditor        domain.DID
	PrescriptionID string
	Reason         string
	Token          string
}

// AuditFullDisclosure checks the auditor's token and registration, then
// releases the audit view. The log entry is written before anything is
// returned.
func (s *Service) AuditFullDisclosure(ctx context.Context, req AuditRequest) (audit.FullDisclosure, audit.LogEntry, error) {
	if req.Token == "" {
		return audit.FullDisclosure{}, audit.LogEntry{}, dErrors.New(dErrors.CodeUnauthorized, "authorization token is required")
	}
	if _, err := s.Tokens.Verify(req.Token, req.Auditor); err != nil {
		s.logger.WarnContext(ctx, "audit token rejected",
			"auditor", req.Auditor.String(),
			"prescription_id", req.PrescriptionID,
			"error", err,
		)
		return audit.FullDisclosure{}, audit.LogEntry{}, err
	}
	if err := s.requireRole(ctx, req.Auditor, domain.RoleAuditor); err != nil {
		return audit.FullDisclosure{}, audit.LogEntry{}, err
	}
	return s.Audits.DeriveFullDisclosure(ctx, req.Auditor, req.PrescriptionID, req.Reason, req.Token)
}

// Statistics extends the credential counts with the audit log size.
type Statistics struct {
	models.Statistics
	AuditEntries *int `json:"auditEntries,omitempty"`
}

// GetStatistics summarizes stored credentials and, when the audit sink can
// count, its entries.
func (s *Service) GetStatistics(ctx context.Context) (Statistics, error) {
	stats, err := s.Store.Statistics(ctx)
	if err != nil {
		return Statistics{}, dErrors.FromCollaborator(storeCollaborator, "statistics", err)
	}
	out := Statistics{Statistics: stats}
	if s.counter != nil {
		n, err := s.counter.Count(ctx)
		if err != nil {
			return Statistics{}, dErrors.Unavailable(audit.SinkCollaborator, "count", err)
		}
		out.AuditEntries = &n
	}
	return out, nil
}
