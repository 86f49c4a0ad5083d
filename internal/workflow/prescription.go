package workflow

import (
	"context"
	"strings"

	"rxvc/internal/credential/issuer"
	"rxvc/internal/credential/models"
	"rxvc/internal/disclosure"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	platformaudit "rxvc/pkg/platform/audit"
)

// IssuePrescriptionRequest is a doctor prescribing for a patient.
type IssuePrescriptionRequest struct {
	Doctor  domain.DID
	Patient domain.DID
	Claims  models.PrescriptionClaims
}

// IssuePrescription signs a prescription credential and stores it in the
// created state.
func (s *Service) IssuePrescription(ctx context.Context, req IssuePrescriptionRequest) (models.Record, error) {
	if req.Patient.IsNil() {
		return models.Record{}, dErrors.New(dErrors.CodeInvalidInput, "patient did is required")
	}
	if err := s.requireRole(ctx, req.Doctor, domain.RoleDoctor); err != nil {
		return models.Record{}, err
	}
	claims, err := models.ToClaims(req.Claims)
	if err != nil {
		return models.Record{}, dErrors.Wrap(err, dErrors.CodeInvalidClaims, "prescription claims are not serializable")
	}

	signed, err := s.issue(ctx, issuer.IssueRequest{
		Type:    models.TypePrescription,
		Issuer:  req.Doctor,
		Subject: req.Patient,
		Claims:  claims,
	})
	if err != nil {
		return models.Record{}, err
	}

	now := s.clock(ctx).UTC()
	record := models.Record{
		ID:         signed.ID,
		Type:       models.TypePrescription,
		Issuer:     req.Doctor.String(),
		Subject:    req.Patient.String(),
		Status:     models.StatusCreated,
		Credential: signed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.Store.Save(ctx, record); err != nil {
			return storeError(err, record.ID)
		}
		return s.emit(ctx, platformaudit.EventPrescriptionIssued, req.Doctor, record.ID, string(record.Status), "")
	})
	if err != nil {
		return models.Record{}, err
	}

	s.logger.InfoContext(ctx, "prescription issued",
		"prescription_id", record.ID,
		"doctor", req.Doctor.String(),
		"suite", record.Suite().String(),
	)
	return record, nil
}

// VerifyForPharmacy reveals the pharmacy view of a prescription and moves a
// freshly created prescription to verified.
func (s *Service) VerifyForPharmacy(ctx context.Context, pharmacy domain.DID, prescriptionID string) (disclosure.Disclosure, error) {
	if err := s.requireRole(ctx, pharmacy, domain.RolePharmacy); err != nil {
		return disclosure.Disclosure{}, err
	}
	rx, err := s.load(ctx, prescriptionID, models.TypePrescription)
	if err != nil {
		return disclosure.Disclosure{}, err
	}
	if !rx.Status.IsActive() {
		return disclosure.Disclosure{}, dErrors.Newf(dErrors.CodeConflict, "prescription %s is %s", rx.ID, rx.Status)
	}

	// A credential that cannot be disclosed is never marked verified.
	next := rx
	if rx.Status == models.StatusCreated {
		next.Status = models.StatusVerified
	}
	disc, err := s.Disclosures.DeriveRecord(ctx, next, disclosure.FramePharmacy)
	if err != nil {
		return disclosure.Disclosure{}, err
	}
	if next.Status != rx.Status {
		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			updated, err := s.Store.UpdateStatus(ctx, rx.ID, next.Status)
			if err != nil {
				return storeError(err, prescriptionID)
			}
			rx = updated
			return nil
		})
		if err != nil {
			return disclosure.Disclosure{}, err
		}
	}
	s.track(ctx, platformaudit.EventPrescriptionVerified, pharmacy, rx.ID, string(rx.Status))
	return disc, nil
}

// RevokePrescription lets the prescribing doctor withdraw a prescription in
// any non-terminal state.
func (s *Service) RevokePrescription(ctx context.Context, doctor domain.DID, prescriptionID, reason string) (models.Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Record{}, dErrors.New(dErrors.CodeInvalidInput, "a revocation reason is required")
	}
	if err := s.requireRole(ctx, doctor, domain.RoleDoctor); err != nil {
		return models.Record{}, err
	}
	rx, err := s.load(ctx, prescriptionID, models.TypePrescription)
	if err != nil {
		return models.Record{}, err
	}
	if rx.Issuer != doctor.String() {
		return models.Record{}, dErrors.New(dErrors.CodeForbidden, "only the prescribing doctor may revoke")
	}

	if !rx.Status.CanTransitionTo(models.StatusRevoked) {
		return models.Record{}, dErrors.Newf(dErrors.CodeConflict, "prescription %s is already %s", rx.ID, rx.Status)
	}

	var revoked models.Record
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if revoked, err = s.Store.UpdateStatus(ctx, rx.ID, models.StatusRevoked); err != nil {
			return storeError(err, rx.ID)
		}
		return s.emit(ctx, platformaudit.EventPrescriptionRevoked, doctor, rx.ID, string(models.StatusRevoked), reason)
	})
	if err != nil {
		return models.Record{}, err
	}

	s.logger.InfoContext(ctx, "prescription revoked",
		"prescription_id", rx.ID,
		"previous_status", rx.Status.String(),
	)
	return revoked, nil
}

// Credential returns a stored record to one of its parties: the issuer or
// the subject.
func (s *Service) Credential(ctx context.Context, actor domain.DID, id string) (models.Record, error) {
	if id == "" {
		return models.Record{}, dErrors.New(dErrors.CodeInvalidInput, "credential id is required")
	}
	rec, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return models.Record{}, storeError(err, id)
	}
	if rec.Issuer != actor.String() && rec.Subject != actor.String() {
		return models.Record{}, dErrors.New(dErrors.CodeForbidden, "only the issuer or subject may read a credential")
	}
	return rec, nil
}
