package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rxvc/internal/credential/models"
	storemocks "rxvc/internal/credential/ports/mocks"
	"rxvc/internal/platform/config"
	registrymocks "rxvc/internal/registry/mocks"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/sentinel"
)

type DecisionSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *storemocks.MockCredentialStore
	registry *registrymocks.MockRegistry
	service  *Service
	policy   DefaultPolicy
}

func TestDecisionSuite(t *testing.T) {
	suite.Run(t, new(DecisionSuite))
}

func (s *DecisionSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = storemocks.NewMockCredentialStore(s.ctrl)
	s.registry = registrymocks.NewMockRegistry(s.ctrl)

	weights := config.DefaultEngine().FraudWeights
	weights[config.CheckDoctorUnauthorized] = 10
	s.service = New(s.store, s.registry, weights,
		WithClock(func() time.Time { return verifiedAt }),
	)
	s.policy = DefaultPolicy{MaxScore: 50}
}

func (s *DecisionSuite) request() ClaimRequest {
	return ClaimRequest{Insurer: insurerDID, PrescriptionID: "rx-1", DispensingID: "disp-1"}
}

// expectChain wires the store and registry for a full chain. A nil
// confirmation means the patient never confirmed.
func (s *DecisionSuite) expectChain(rx, disp models.Record, conf *models.Record, doctorOK, pharmacyOK bool) {
	s.store.EXPECT().FindByID(gomock.Any(), rx.ID).Return(rx, nil)
	s.store.EXPECT().FindByID(gomock.Any(), disp.ID).Return(disp, nil)
	if conf != nil {
		s.store.EXPECT().FindConfirmation(gomock.Any(), disp.ID).Return(*conf, nil)
	} else {
		s.store.EXPECT().FindConfirmation(gomock.Any(), disp.ID).Return(models.Record{}, sentinel.ErrNotFound)
	}
	s.registry.EXPECT().IsAuthorized(gomock.Any(), domain.DID(doctorDID), domain.RoleDoctor).Return(doctorOK, nil)
	s.registry.EXPECT().IsAuthorized(gomock.Any(), domain.DID(pharmacyDID), domain.RolePharmacy).Return(pharmacyOK, nil)
}

func (s *DecisionSuite) TestScenarioA_ConfirmedChainIsApproved() {
	conf := confirmation("conf-1", "disp-1")
	s.expectChain(prescription("rx-1", models.StatusConfirmed), dispensing("disp-1", "rx-1", 30), &conf, false, true)

	proof, err := s.service.VerifyClaim(context.Background(), s.request())
	s.Require().NoError(err)

	s.True(proof.PrescriptionExists)
	s.True(proof.MedicationDispensed)
	s.True(proof.PatientConfirmed)
	s.True(proof.PharmacyAuthorized)
	s.False(proof.DoctorAuthorized, "authorization is reported but does not gate")
	s.Equal(10, proof.FraudScore)
	s.Equal([]string{config.CheckDoctorUnauthorized}, proof.FailedChecks)
	s.Equal(verifiedAt, proof.VerificationTimestamp)
	s.Len(proof.ProofHash, 64)
	s.True(s.policy.Approve(proof))
}

func (s *DecisionSuite) TestScenarioB_UnconfirmedChainIsDenied() {
	s.expectChain(prescription("rx-1", models.StatusDispensed), dispensing("disp-1", "rx-1", 30), nil, false, true)

	proof, err := s.service.VerifyClaim(context.Background(), s.request())
	s.Require().NoError(err, "a denied claim is still a successful verification")

	s.False(proof.PatientConfirmed)
	s.True(proof.PrescriptionExists)
	s.True(proof.MedicationDispensed)
	s.True(proof.PharmacyAuthorized)
	s.False(proof.DoctorAuthorized)
	s.Less(proof.FraudScore, 50)
	s.False(s.policy.Approve(proof))
}

func (s *DecisionSuite) TestScenarioC_MissingPrescriptionIsNotFound() {
	s.store.EXPECT().FindByID(gomock.Any(), "rx-1").Return(models.Record{}, sentinel.ErrNotFound)
	s.store.EXPECT().FindByID(gomock.Any(), "disp-1").Return(dispensing("disp-1", "rx-1", 30), nil).MaxTimes(1)

	_, err := s.service.VerifyClaim(context.Background(), s.request())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Contains(err.Error(), "rx-1")
}

func (s *DecisionSuite) TestMissingDispensingIsNotFound() {
	s.store.EXPECT().FindByID(gomock.Any(), "rx-1").Return(prescription("rx-1", models.StatusDispensed), nil).MaxTimes(1)
	s.store.EXPECT().FindByID(gomock.Any(), "disp-1").Return(models.Record{}, sentinel.ErrNotFound)

	_, err := s.service.VerifyClaim(context.Background(), s.request())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DecisionSuite) TestDispensingForAnotherPrescription() {
	s.store.EXPECT().FindByID(gomock.Any(), "rx-1").Return(prescription("rx-1", models.StatusDispensed), nil)
	s.store.EXPECT().FindByID(gomock.Any(), "disp-1").Return(dispensing("disp-1", "rx-2", 30), nil)

	_, err := s.service.VerifyClaim(context.Background(), s.request())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidClaims))
}

func (s *DecisionSuite) TestWrongCredentialTypes() {
	s.store.EXPECT().FindByID(gomock.Any(), "rx-1").Return(dispensing("rx-1", "rx-0", 30), nil)
	s.store.EXPECT().FindByID(gomock.Any(), "disp-1").Return(dispensing("disp-1", "rx-1", 30), nil)

	_, err := s.service.VerifyClaim(context.Background(), s.request())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidClaims))
}

func (s *DecisionSuite) TestStoreOutageIsRetryable() {
	s.store.EXPECT().FindByID(gomock.Any(), "rx-1").Return(models.Record{}, errors.New("connection reset"))
	s.store.EXPECT().FindByID(gomock.Any(), "disp-1").Return(dispensing("disp-1", "rx-1", 30), nil).MaxTimes(1)

	_, err := s.service.VerifyClaim(context.Background(), s.request())
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.True(dErrors.CodeOf(err).Retryable())
	s.Contains(err.Error(), "credential store")
}

func (s *DecisionSuite) TestRegistryOutageIsRetryable() {
	s.store.EXPECT().FindByID(gomock.Any(), "rx-1").Return(prescription("rx-1", models.StatusDispensed), nil)
	s.store.EXPECT().FindByID(gomock.Any(), "disp-1").Return(dispensing("disp-1", "rx-1", 30), nil)
	s.store.EXPECT().FindConfirmation(gomock.Any(), "disp-1").Return(models.Record{}, sentinel.ErrNotFound).MaxTimes(1)
	s.registry.EXPECT().IsAuthorized(gomock.Any(), domain.DID(doctorDID), domain.RoleDoctor).
		Return(false, errors.New("registry timeout"))
	s.registry.EXPECT().IsAuthorized(gomock.Any(), domain.DID(pharmacyDID), domain.RolePharmacy).
		Return(true, nil).MaxTimes(1)

	_, err := s.service.VerifyClaim(context.Background(), s.request())
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Contains(err.Error(), doctorDID)
}

func (s *DecisionSuite) TestRevokedPrescriptionScoresAsMissing() {
	conf := confirmation("conf-1", "disp-1")
	s.expectChain(prescription("rx-1", models.StatusRevoked), dispensing("disp-1", "rx-1", 30), &conf, true, true)

	proof, err := s.service.VerifyClaim(context.Background(), s.request())
	s.Require().NoError(err)
	s.False(proof.PrescriptionExists)
	s.False(proof.MedicationDispensed)
	s.Contains(proof.FailedChecks, config.CheckPrescriptionMissing)
	s.GreaterOrEqual(proof.FraudScore, 50)
	s.False(s.policy.Approve(proof))
}

func (s *DecisionSuite) TestOverDispensingRaisesScore() {
	conf := confirmation("conf-1", "disp-1")
	s.expectChain(prescription("rx-1", models.StatusConfirmed), dispensing("disp-1", "rx-1", 60), &conf, true, true)

	proof, err := s.service.VerifyClaim(context.Background(), s.request())
	s.Require().NoError(err)
	s.Equal([]string{config.CheckQuantityExceeded}, proof.FailedChecks)
	s.Equal(25, proof.FraudScore)
}

func (s *DecisionSuite) TestProofHashBindsEvidence() {
	conf := confirmation("conf-1", "disp-1")
	amount := 42.5

	s.expectChain(prescription("rx-1", models.StatusConfirmed), dispensing("disp-1", "rx-1", 30), &conf, true, true)
	first, err := s.service.VerifyClaim(context.Background(), s.request())
	s.Require().NoError(err)

	s.expectChain(prescription("rx-1", models.StatusConfirmed), dispensing("disp-1", "rx-1", 30), &conf, true, true)
	second, err := s.service.VerifyClaim(context.Background(), s.request())
	s.Require().NoError(err)
	s.Equal(first.ProofHash, second.ProofHash, "same evidence, same hash")

	s.expectChain(prescription("rx-1", models.StatusConfirmed), dispensing("disp-1", "rx-1", 30), &conf, true, true)
	req := s.request()
	req.ClaimAmount = &amount
	third, err := s.service.VerifyClaim(context.Background(), req)
	s.Require().NoError(err)
	s.NotEqual(first.ProofHash, third.ProofHash)
}

func (s *DecisionSuite) TestRejectsIncompleteRequests() {
	_, err := s.service.VerifyClaim(context.Background(), ClaimRequest{PrescriptionID: "rx-1"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	negative := -1.0
	req := s.request()
	req.ClaimAmount = &negative
	_, err = s.service.VerifyClaim(context.Background(), req)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
