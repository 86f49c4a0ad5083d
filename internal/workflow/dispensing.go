package workflow

import (
	"context"
	"errors"
	"strings"

	"rxvc/internal/credential/issuer"
	"rxvc/internal/credential/models"
	"rxvc/internal/fraud"
	"rxvc/internal/fraud/alerts"
	"rxvc/internal/registry"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	platformaudit "rxvc/pkg/platform/audit"
	"rxvc/pkg/platform/sentinel"
)

// CreateDispensingRequest is a pharmacy recording what it handed out.
// PrescriptionID and PatientConfirmed in Claims are set by the workflow.
type CreateDispensingRequest struct {
	Pharmacy       domain.DID
	PrescriptionID string
	Claims         models.DispensingClaims
}

// DispensingResult is the stored dispensing record and its risk score.
type DispensingResult struct {
	Record models.Record `json:"-"`
	Fraud  fraud.Result  `json:"fraud"`
}

// CreateDispensingProof scores the dispensing, signs the dispensing
// credential and moves the prescription to dispensed. A prescription can be
// dispensed once; high-risk scores raise an alert but do not block.
func (s *Service) CreateDispensingProof(ctx context.Context, req CreateDispensingRequest) (DispensingResult, error) {
	if err := s.requireRole(ctx, req.Pharmacy, domain.RolePharmacy); err != nil {
		return DispensingResult{}, err
	}
	rx, err := s.load(ctx, req.PrescriptionID, models.TypePrescription)
	if err != nil {
		return DispensingResult{}, err
	}
	if !rx.Status.CanTransitionTo(models.StatusDispensed) || rx.Status == models.StatusDispensed {
		return DispensingResult{}, dErrors.Newf(dErrors.CodeConflict, "prescription %s is %s and cannot be dispensed", rx.ID, rx.Status)
	}
	prescribed, err := models.FromSubject[models.PrescriptionClaims](rx.Credential.CredentialSubject)
	if err != nil {
		return DispensingResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "stored prescription is unreadable")
	}

	doctor, err := domain.ParseDID(rx.Issuer)
	if err != nil {
		return DispensingResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "stored prescription has a malformed issuer")
	}
	doctorAuthorized, err := s.Registry.IsAuthorized(ctx, doctor, domain.RoleDoctor)
	if err != nil {
		return DispensingResult{}, dErrors.FromCollaborator(registry.Collaborator, rx.Issuer, err)
	}

	claims := req.Claims
	claims.PrescriptionID = rx.ID
	claims.PatientConfirmed = false
	if claims.DispensedAt.IsZero() {
		claims.DispensedAt = s.timestamp(ctx)
	}

	result := fraud.Evaluate(fraud.Evidence{
		Stage:              fraud.StageDispensing,
		PrescriptionFound:  true,
		PrescriptionStatus: rx.Status,
		EvaluatedAt:        s.clock(ctx).UTC(),
		IssuanceDate:       rx.Credential.IssuanceDate,
		ValidUntil:         prescribed.ValidUntil,
		DoctorAuthorized:   doctorAuthorized,
		PharmacyAuthorized: true,
		PrescribedQuantity: prescribed.Quantity,
		DispensedQuantity:  claims.QuantityDispensed,
		DispensedAt:        claims.DispensedAt,
	}, s.Weights)

	payload, err := models.ToClaims(claims)
	if err != nil {
		return DispensingResult{}, dErrors.Wrap(err, dErrors.CodeInvalidClaims, "dispensing claims are not serializable")
	}
	patient := domain.DID(rx.Subject)
	signed, err := s.issue(ctx, issuer.IssueRequest{
		Type:      models.TypeDispensing,
		Issuer:    req.Pharmacy,
		Subject:   patient,
		Claims:    payload,
		Reference: rx.ID,
	})
	if err != nil {
		return DispensingResult{}, err
	}

	now := s.clock(ctx).UTC()
	score := result.Score
	record := models.Record{
		ID:         signed.ID,
		Type:       models.TypeDispensing,
		Issuer:     req.Pharmacy.String(),
		Subject:    rx.Subject,
		Reference:  rx.ID,
		Status:     models.StatusIssued,
		Credential: signed,
		FraudScore: &score,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.Store.Save(ctx, record); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "prescription %s already has an active dispensing credential", rx.ID)
			}
			return storeError(err, record.ID)
		}
		if _, err := s.Store.UpdateStatus(ctx, rx.ID, models.StatusDispensed); err != nil {
			return storeError(err, rx.ID)
		}
		return s.emit(ctx, platformaudit.EventDispensingCreated, req.Pharmacy, record.ID, string(result.Band), "")
	})
	if err != nil {
		return DispensingResult{}, err
	}

	s.logger.InfoContext(ctx, "medication dispensed",
		"prescription_id", rx.ID,
		"dispensing_id", record.ID,
		"fraud_score", result.Score,
		"fraud_band", string(result.Band),
	)
	if result.Band == fraud.BandHigh {
		s.raiseAlert(ctx, req.Pharmacy, rx.ID, record.ID, result)
	}
	return DispensingResult{Record: record, Fraud: result}, nil
}

// raiseAlert publishes a high-risk alert. The dispensing is already stored,
// so a failed publish is logged and tracked but not returned.
func (s *Service) raiseAlert(ctx context.Context, pharmacy domain.DID, prescriptionID, dispensingID string, result fraud.Result) {
	err := s.alerts.Publish(ctx, alerts.Alert{
		Stage:          fraud.StageDispensing,
		PrescriptionID: prescriptionID,
		DispensingID:   dispensingID,
		Actor:          pharmacy.String(),
		Score:          result.Score,
		Band:           result.Band,
		FailedChecks:   result.Failed,
		RaisedAt:       s.clock(ctx).UTC(),
	})
	outcome := "published"
	if err != nil {
		outcome = "publish_failed"
		s.logger.ErrorContext(ctx, "fraud alert not published",
			"prescription_id", prescriptionID,
			"dispensing_id", dispensingID,
			"error", err,
		)
	}
	s.track(ctx, platformaudit.EventFraudAlertRaised, pharmacy, dispensingID, outcome)
}

// ConfirmReceiptRequest is a patient confirming a dispensing.
type ConfirmReceiptRequest struct {
	Patient      domain.DID
	DispensingID string
	Notes        string
}

// ConfirmReceipt issues the patient's confirmation credential and moves the
// prescription to confirmed. Only the prescription's subject may confirm,
// and only once.
func (s *Service) ConfirmReceipt(ctx context.Context, req ConfirmReceiptRequest) (models.Record, error) {
	if req.Patient.IsNil() {
		return models.Record{}, dErrors.New(dErrors.CodeInvalidInput, "patient did is required")
	}
	disp, err := s.load(ctx, req.DispensingID, models.TypeDispensing)
	if err != nil {
		return models.Record{}, err
	}
	if !disp.Status.IsActive() {
		return models.Record{}, dErrors.Newf(dErrors.CodeConflict, "dispensing credential %s is %s", disp.ID, disp.Status)
	}
	rx, err := s.load(ctx, disp.Reference, models.TypePrescription)
	if err != nil {
		return models.Record{}, err
	}
	if rx.Subject != req.Patient.String() {
		return models.Record{}, dErrors.New(dErrors.CodeForbidden, "only the prescription's patient may confirm receipt")
	}
	if rx.Status != models.StatusDispensed {
		return models.Record{}, dErrors.Newf(dErrors.CodeConflict, "prescription %s is %s", rx.ID, rx.Status)
	}

	claims, err := models.ToClaims(models.ConfirmationClaims{
		DispensingID: disp.ID,
		ConfirmedAt:  s.timestamp(ctx),
		Notes:        strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return models.Record{}, dErrors.Wrap(err, dErrors.CodeInvalidClaims, "confirmation claims are not serializable")
	}
	signed, err := s.issue(ctx, issuer.IssueRequest{
		Type:      models.TypeConfirmation,
		Issuer:    req.Patient,
		Subject:   req.Patient,
		Claims:    claims,
		Reference: disp.ID,
	})
	if err != nil {
		return models.Record{}, err
	}

	now := s.clock(ctx).UTC()
	record := models.Record{
		ID:         signed.ID,
		Type:       models.TypeConfirmation,
		Issuer:     req.Patient.String(),
		Subject:    req.Patient.String(),
		Reference:  disp.ID,
		Status:     models.StatusIssued,
		Credential: signed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.Store.Save(ctx, record); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "dispensing %s is already confirmed", disp.ID)
			}
			return storeError(err, record.ID)
		}
		if _, err := s.Store.UpdateStatus(ctx, rx.ID, models.StatusConfirmed); err != nil {
			return storeError(err, rx.ID)
		}
		return s.emit(ctx, platformaudit.EventReceiptConfirmed, req.Patient, record.ID, string(models.StatusConfirmed), "")
	})
	if err != nil {
		return models.Record{}, err
	}

	s.logger.InfoContext(ctx, "receipt confirmed",
		"prescription_id", rx.ID,
		"dispensing_id", disp.ID,
		"confirmation_id", record.ID,
	)
	return record, nil
}
