package disclosure

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports/mocks"
	"rxvc/internal/platform/config"
	"rxvc/internal/platform/logger"
	dErrors "rxvc/pkg/domain-errors"
)

type DisclosureSuite struct {
	suite.Suite
	ctx    context.Context
	signer *mocks.MockSigner
	svc    *Service
}

func TestDisclosureSuite(t *testing.T) {
	suite.Run(t, new(DisclosureSuite))
}

func (s *DisclosureSuite) SetupTest() {
	s.ctx = context.Background()
	s.signer = mocks.NewMockSigner(gomock.NewController(s.T()))
	catalog, err := NewCatalog(config.DefaultEngine())
	s.Require().NoError(err)
	s.svc = New(s.signer, catalog, WithLogger(logger.Discard()))
}

func signedPrescription(proofType models.Suite) models.Credential {
	return models.Credential{
		Context:      models.DefaultContexts,
		ID:           "urn:uuid:rx-1",
		Type:         []string{"VerifiableCredential", string(models.TypePrescription)},
		Issuer:       "did:example:doctor-1",
		IssuanceDate: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		CredentialSubject: models.Subject{
			"id":             "did:example:patient-1",
			"medicationName": "Amoxicillin",
			"dosage":         "500mg",
			"frequency":      "3x daily",
			"duration":       "7 days",
			"quantity":       float64(21),
			"refills":        float64(0),
			"validUntil":     "2026-12-31T00:00:00Z",
			"instructions":   "with food",
			"patientInfo": map[string]any{
				"name":        "Jane Roe",
				"birthDate":   "1990-01-01",
				"insuranceId": "INS-1",
			},
			"doctorInfo": map[string]any{
				"name":          "Dr. Smith",
				"licenseNumber": "MD-1",
			},
		},
		Proof: &models.Proof{Type: proofType, VerificationMethod: "did:example:doctor-1#key-1", ProofValue: "sig"},
	}
}

func (s *DisclosureSuite) expectDerive() {
	s.signer.EXPECT().
		Derive(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ models.Credential, fields []string) (models.Proof, error) {
			return models.Proof{Type: models.SuiteBBSProof, ProofValue: "derived", Revealed: fields}, nil
		}).
		AnyTimes()
}

func (s *DisclosureSuite) TestPharmacyFrame() {
	s.expectDerive()

	d, err := s.svc.Derive(s.ctx, signedPrescription(models.SuiteBBS), FramePharmacy)

	s.Require().NoError(err)
	subject := d.Credential.CredentialSubject
	s.Equal("did:example:patient-1", subject["id"])
	s.Equal("500mg", subject["dosage"])
	_, leaked := subject.Lookup("patientInfo.insuranceId")
	s.False(leaked)
	s.Equal(models.SuiteBBSProof, d.Credential.Proof.Type)
	s.Equal("1", d.FrameVersion)
}

func (s *DisclosureSuite) TestInsuranceFrameRevealsOnlyMedicationAndDates() {
	s.expectDerive()

	d, err := s.svc.Derive(s.ctx, signedPrescription(models.SuiteBBS), FrameInsurance)

	s.Require().NoError(err)
	paths := d.Credential.CredentialSubject.Paths()
	slices.Sort(paths)
	s.Equal([]string{"medicationName", "validUntil"}, paths)
}

func (s *DisclosureSuite) TestAuditFrameIsSuperset() {
	s.expectDerive()
	cred := signedPrescription(models.SuiteBBS)

	audit, err := s.svc.Derive(s.ctx, cred, FrameAudit)
	s.Require().NoError(err)
	s.ElementsMatch(cred.CredentialSubject.Paths(), audit.Credential.CredentialSubject.Paths())

	for _, frame := range []FrameName{FramePharmacy, FrameInsurance} {
		d, err := s.svc.Derive(s.ctx, cred, frame)
		s.Require().NoError(err)
		for _, path := range d.Credential.CredentialSubject.Paths() {
			_, ok := audit.Credential.CredentialSubject.Lookup(path)
			s.True(ok, "%s reveals %s but audit does not", frame, path)
		}
	}
}

func (s *DisclosureSuite) TestDerivationIsDeterministic() {
	s.expectDerive()
	cred := signedPrescription(models.SuiteBBS)

	first, err := s.svc.Derive(s.ctx, cred, FramePharmacy)
	s.Require().NoError(err)
	second, err := s.svc.Derive(s.ctx, cred, FramePharmacy)
	s.Require().NoError(err)

	s.Equal(first.Credential.CredentialSubject, second.Credential.CredentialSubject)
	s.Equal(first.Credential.Proof.Revealed, second.Credential.Proof.Revealed)

	reordered := config.DefaultEngine()
	frame := reordered.Frames[config.FramePharmacy]
	slices.Reverse(frame.Fields)
	reordered.Frames[config.FramePharmacy] = frame
	catalog, err := NewCatalog(reordered)
	s.Require().NoError(err)
	third, err := New(s.signer, catalog).Derive(s.ctx, cred, FramePharmacy)
	s.Require().NoError(err)
	s.Equal(first.Credential.CredentialSubject, third.Credential.CredentialSubject)
	s.Equal(first.Credential.Proof.Revealed, third.Credential.Proof.Revealed)
}

func (s *DisclosureSuite) TestFallbackSuiteIsUnsupportedWithoutSignerCall() {
	for _, frame := range FrameNames() {
		_, err := s.svc.Derive(s.ctx, signedPrescription(models.SuiteJWS), frame)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDisclosureUnsupported))
	}
}

func (s *DisclosureSuite) TestUnsignedCredential() {
	cred := signedPrescription(models.SuiteBBS)
	cred.Proof = nil

	_, err := s.svc.Derive(s.ctx, cred, FramePharmacy)

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *DisclosureSuite) TestSignerOutage() {
	s.signer.EXPECT().Derive(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.Proof{}, errors.New("timeout"))

	_, err := s.svc.Derive(s.ctx, signedPrescription(models.SuiteBBS), FramePharmacy)

	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Contains(err.Error(), "urn:uuid:rx-1")
}

func (s *DisclosureSuite) TestDeriveRecordAttachesFrameState() {
	s.expectDerive()
	record := models.Record{ID: "urn:uuid:rx-1", Status: models.StatusDispensed, Credential: signedPrescription(models.SuiteBBS)}

	pharmacy, err := s.svc.DeriveRecord(s.ctx, record, FramePharmacy)
	s.Require().NoError(err)
	s.Require().NotNil(pharmacy.State.Status)
	s.Equal(models.StatusDispensed, *pharmacy.State.Status)
	s.Nil(pharmacy.State.Dispensed)

	insurance, err := s.svc.DeriveRecord(s.ctx, record, FrameInsurance)
	s.Require().NoError(err)
	s.Nil(insurance.State.Status)
	s.True(*insurance.State.Dispensed)
	s.False(*insurance.State.Confirmed)
}

func (s *DisclosureSuite) TestParseFrameName() {
	name, err := ParseFrameName(" Pharmacy ")
	s.Require().NoError(err)
	s.Equal(FramePharmacy, name)

	_, err = ParseFrameName("marketing")
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownFrame))

	_, err = s.svc.Derive(s.ctx, signedPrescription(models.SuiteBBS), FrameName("marketing"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownFrame))
}
