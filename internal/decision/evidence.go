package decision

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"rxvc/internal/credential/models"
	"rxvc/internal/registry"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/sentinel"
)

const storeCollaborator = "credential store"

// gathered is the evidence loaded for one claim.
type gathered struct {
	prescription       models.Record
	dispensing         models.Record
	confirmation       *models.Record
	doctorAuthorized   bool
	pharmacyAuthorized bool
}

// gatherEvidence loads the chain in two concurrent rounds: the two
// referenced credentials, then what depends on their issuers and ids.
func (s *Service) gatherEvidence(ctx context.Context, req ClaimRequest) (*gathered, error) {
	ctx, cancel := context.WithTimeout(ctx, s.evidenceTimeout)
	defer cancel()

	ev := &gathered{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := s.loadRecord(gctx, "prescription", req.PrescriptionID)
		ev.prescription = rec
		return err
	})
	g.Go(func() error {
		rec, err := s.loadRecord(gctx, "dispensing", req.DispensingID)
		ev.dispensing = rec
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if ev.prescription.Type != models.TypePrescription {
		return nil, dErrors.Newf(dErrors.CodeInvalidClaims, "credential %s is not a prescription", req.PrescriptionID)
	}
	if ev.dispensing.Type != models.TypeDispensing {
		return nil, dErrors.Newf(dErrors.CodeInvalidClaims, "credential %s is not a dispensing credential", req.DispensingID)
	}
	if ev.dispensing.Reference != ev.prescription.ID {
		return nil, dErrors.Newf(dErrors.CodeInvalidClaims,
			"dispensing credential %s does not reference prescription %s", req.DispensingID, req.PrescriptionID)
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		rec, err := s.store.FindConfirmation(gctx, ev.dispensing.ID)
		s.metrics.ObserveEvidenceLatency("confirmation", time.Since(start))
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return dErrors.Unavailable(storeCollaborator, ev.dispensing.ID, err)
		}
		ev.confirmation = &rec
		return nil
	})
	g.Go(func() error {
		ok, err := s.authorized(gctx, "doctor", domain.DID(ev.prescription.Issuer), domain.RoleDoctor)
		ev.doctorAuthorized = ok
		return err
	})
	g.Go(func() error {
		ok, err := s.authorized(gctx, "pharmacy", domain.DID(ev.dispensing.Issuer), domain.RolePharmacy)
		ev.pharmacyAuthorized = ok
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *Service) loadRecord(ctx context.Context, source, id string) (models.Record, error) {
	start := time.Now()
	rec, err := s.store.FindByID(ctx, id)
	s.metrics.ObserveEvidenceLatency(source, time.Since(start))
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Record{}, dErrors.NotFound(storeCollaborator, id)
	}
	if err != nil {
		return models.Record{}, dErrors.Unavailable(storeCollaborator, id, err)
	}
	return rec, nil
}

func (s *Service) authorized(ctx context.Context, source string, did domain.DID, role domain.Role) (bool, error) {
	start := time.Now()
	ok, err := s.registry.IsAuthorized(ctx, did, role)
	s.metrics.ObserveEvidenceLatency(source, time.Since(start))
	if err != nil {
		return false, dErrors.FromCollaborator(registry.Collaborator, did.String(), err)
	}
	return ok, nil
}
