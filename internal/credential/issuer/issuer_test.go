package issuer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports/mocks"
	"rxvc/internal/identity"
	"rxvc/internal/platform/logger"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
)

const (
	doctorDID   = domain.DID("did:example:doctor-1")
	patientDID  = domain.DID("did:example:patient-1")
	pharmacyDID = domain.DID("did:example:pharmacy-1")
	bbsVM       = "did:example:doctor-1#bbs-1"
)

var fixedNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type IssuerSuite struct {
	suite.Suite
	ctx    context.Context
	signer *mocks.MockSigner
	docs   *identity.Static
	svc    *Service
}

func TestIssuerSuite(t *testing.T) {
	suite.Run(t, new(IssuerSuite))
}

func (s *IssuerSuite) SetupTest() {
	s.ctx = context.Background()
	ctrl := gomock.NewController(s.T())
	s.signer = mocks.NewMockSigner(ctrl)
	s.docs = identity.NewStatic()
	s.svc = New(s.signer, s.docs,
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(logger.Discard()),
	)
}

func prescriptionClaims() map[string]any {
	return map[string]any{
		"medicationName": "Amoxicillin",
		"dosage":         "500mg",
		"frequency":      "3x daily",
		"duration":       "7 days",
		"quantity":       21,
		"refills":        0,
		"validUntil":     "2026-12-31T00:00:00Z",
		"patientInfo": map[string]any{
			"name":        "Jane Roe",
			"birthDate":   "1990-01-01",
			"insuranceId": "INS-1",
		},
		"doctorInfo": map[string]any{
			"name":          "Dr. Smith",
			"licenseNumber": "MD-1",
		},
	}
}

func prescriptionRequest() IssueRequest {
	return IssueRequest{
		Type:    models.TypePrescription,
		Issuer:  doctorDID,
		Subject: patientDID,
		Claims:  prescriptionClaims(),
		Selection: models.Selection{
			VerificationMethod: bbsVM,
			Suite:              models.SuiteBBS,
			KeyType:            models.KeyTypeBls12381G2,
		},
	}
}

func (s *IssuerSuite) TestIssue_SignsOnce() {
	s.signer.EXPECT().
		Sign(gomock.Any(), gomock.Any(), bbsVM, models.SuiteBBS).
		DoAndReturn(func(_ context.Context, unsigned models.Credential, vm string, proofType models.Suite) (models.Proof, error) {
			s.False(unsigned.IsSigned())
			s.Equal(patientDID.String(), unsigned.SubjectID())
			return models.Proof{Type: proofType, VerificationMethod: vm, ProofValue: "sig"}, nil
		}).
		Times(1)

	cred, err := s.svc.Issue(s.ctx, prescriptionRequest())

	s.Require().NoError(err)
	s.Require().True(cred.IsSigned())
	s.Equal(models.TypePrescription, cred.CredentialType())
	s.Equal(doctorDID.String(), cred.Issuer)
	s.Equal(fixedNow, cred.IssuanceDate)
	s.Equal("Amoxicillin", cred.CredentialSubject["medicationName"])
	s.Contains(cred.ID, "urn:uuid:")
}

func (s *IssuerSuite) TestIssue_InvalidClaimsNeverReachSigner() {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"missing medication", func(c map[string]any) { delete(c, "medicationName") }, "medicationName"},
		{"expired validity", func(c map[string]any) { c["validUntil"] = "2026-09-01T00:00:00Z" }, "validUntil"},
		{"zero quantity", func(c map[string]any) { c["quantity"] = 0 }, "quantity"},
		{"missing doctor license", func(c map[string]any) {
			delete(c["doctorInfo"].(map[string]any), "licenseNumber")
		}, "doctorInfo.licenseNumber"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := prescriptionRequest()
			tt.mutate(req.Claims)

			_, err := s.svc.Issue(s.ctx, req)

			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidClaims))
			s.Contains(err.Error(), tt.field)
		})
	}
}

func (s *IssuerSuite) TestIssue_DispensingMustReferencePrescription() {
	req := IssueRequest{
		Type:      models.TypeDispensing,
		Issuer:    pharmacyDID,
		Subject:   patientDID,
		Reference: "urn:uuid:rx-1",
		Claims: map[string]any{
			"prescriptionId":    "urn:uuid:rx-2",
			"batchNumber":       "B-1",
			"expirationDate":    "2027-06-30",
			"quantityDispensed": 0,
			"pharmacyName":      "Corner Pharmacy",
			"pharmacistLicense": "PH-1",
			"patientConfirmed":  false,
			"dispensedAt":       "2026-10-01T08:00:00Z",
		},
		Selection: models.Selection{VerificationMethod: "did:example:pharmacy-1#jws-1", Suite: models.SuiteJWS},
	}

	_, err := s.svc.Issue(s.ctx, req)

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidClaims))
	s.Contains(err.Error(), "prescriptionId")
	s.Contains(err.Error(), "quantityDispensed")
}

func (s *IssuerSuite) TestIssue_RejectsForeignVerificationMethod() {
	req := prescriptionRequest()
	req.Selection.VerificationMethod = "did:example:other#bbs-1"

	_, err := s.svc.Issue(s.ctx, req)

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *IssuerSuite) TestIssue_SignerOutage() {
	s.signer.EXPECT().
		Sign(gomock.Any(), gomock.Any(), bbsVM, models.SuiteBBS).
		Return(models.Proof{}, errors.New("connection refused"))

	_, err := s.svc.Issue(s.ctx, prescriptionRequest())

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Contains(err.Error(), bbsVM)
}

func (s *IssuerSuite) TestSelectKey() {
	jwk := models.JWK{Kty: "EC", Crv: "BLS12381_G2", X: "x1", Y: "y1"}
	s.docs.Put(identity.NewDocument(doctorDID, identity.VerificationMethod{
		ID:           bbsVM,
		Type:         models.KeyTypeBls12381G2,
		PublicKeyJwk: &jwk,
	}))
	s.signer.EXPECT().Keys(gomock.Any(), doctorDID).Return([]models.KeyRef{
		{ID: bbsVM, Type: models.KeyTypeBls12381G2, PublicKeyJwk: jwk},
	}, nil)

	sel, err := s.svc.SelectKey(s.ctx, doctorDID)

	s.Require().NoError(err)
	s.Equal(bbsVM, sel.VerificationMethod)
	s.Equal(models.SuiteBBS, sel.Suite)
}

func (s *IssuerSuite) TestSelectKey_UnknownIssuer() {
	s.signer.EXPECT().Keys(gomock.Any(), domain.DID("did:example:nobody")).Return(nil, nil)

	_, err := s.svc.SelectKey(s.ctx, "did:example:nobody")

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
