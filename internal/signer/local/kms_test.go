package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rxvc/internal/credential/models"
	"rxvc/internal/identity"
	"rxvc/internal/platform/logger"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
)

const doctor = domain.DID("did:example:doctor-1")

type KMSSuite struct {
	suite.Suite
	ctx  context.Context
	docs *identity.Static
	kms  *KMS
}

func TestKMSSuite(t *testing.T) {
	suite.Run(t, new(KMSSuite))
}

func (s *KMSSuite) SetupTest() {
	s.ctx = context.Background()
	s.docs = identity.NewStatic()
	s.kms = New(WithDocuments(s.docs), WithLogger(logger.Discard()))
}

func unsignedPrescription() models.Credential {
	return models.Credential{
		Context:      models.DefaultContexts,
		ID:           "urn:uuid:rx-1",
		Type:         []string{"VerifiableCredential", string(models.TypePrescription)},
		Issuer:       doctor.String(),
		IssuanceDate: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		CredentialSubject: models.Subject{
			"id":             "did:example:patient-1",
			"medicationName": "Amoxicillin",
			"dosage":         "500mg",
			"quantity":       float64(21),
			"patientInfo": map[string]any{
				"name":        "Jane Roe",
				"insuranceId": "INS-1",
			},
		},
	}
}

func (s *KMSSuite) publicKey(vm string) models.JWK {
	doc, err := s.docs.Resolve(s.ctx, domain.ControllerOf(vm))
	s.Require().NoError(err)
	for _, m := range doc.VerificationMethod {
		if m.ID == vm {
			return *m.PublicKeyJwk
		}
	}
	s.FailNow("verification method not published", vm)
	return models.JWK{}
}

func (s *KMSSuite) TestProvisionPublishesDocument() {
	refs, err := s.kms.Provision(doctor, models.KeyTypeBls12381G2, models.KeyTypeJWK)
	s.Require().NoError(err)
	s.Require().Len(refs, 2)
	s.Equal("did:example:doctor-1#bbs-1", refs[0].ID)
	s.Equal("did:example:doctor-1#jws-1", refs[1].ID)
	s.Equal("OKP", refs[1].PublicKeyJwk.Kty)

	doc, err := s.docs.Resolve(s.ctx, doctor)
	s.Require().NoError(err)
	s.Require().NoError(doc.Validate(doctor))
	s.Len(doc.VerificationMethod, 2)
	s.True(doc.VerificationMethod[0].PublicKeyJwk.SameKey(refs[0].PublicKeyJwk))
}

func (s *KMSSuite) TestAutoProvision() {
	kms := New(WithDocuments(s.docs), WithAutoProvision(models.KeyTypeJWK), WithLogger(logger.Discard()))

	first, err := kms.Keys(s.ctx, doctor)
	s.Require().NoError(err)
	s.Require().Len(first, 1)

	second, err := kms.Keys(s.ctx, doctor)
	s.Require().NoError(err)
	s.Equal(first, second, "keys are provisioned once")
}

func (s *KMSSuite) TestBBSSignDeriveVerify() {
	refs, err := s.kms.Provision(doctor, models.KeyTypeBls12381G2)
	s.Require().NoError(err)
	vm := refs[0].ID

	unsigned := unsignedPrescription()
	proof, err := s.kms.Sign(s.ctx, unsigned, vm, models.SuiteBBS)
	s.Require().NoError(err)
	s.Equal(models.SuiteBBS, proof.Type)

	signed := unsigned
	signed.Proof = &proof
	s.Require().NoError(VerifySigned(signed, s.publicKey(vm)))

	fields := []string{"medicationName", "patientInfo.name"}
	derived, err := s.kms.Derive(s.ctx, signed, fields)
	s.Require().NoError(err)
	s.Equal(models.SuiteBBSProof, derived.Type)
	s.Equal(fields, derived.Revealed)

	disclosed := signed
	disclosed.CredentialSubject = signed.CredentialSubject.Project(fields)
	disclosed.Proof = &derived
	s.Require().NoError(VerifyDerived(disclosed, s.publicKey(vm)))

	s.Run("tampered revealed value", func() {
		forged := disclosed
		forged.CredentialSubject = disclosed.CredentialSubject.Project(fields)
		forged.CredentialSubject["medicationName"] = "Oxycodone"
		s.Error(VerifyDerived(forged, s.publicKey(vm)))
	})

	s.Run("field smuggled in without a salt", func() {
		forged := disclosed
		forged.CredentialSubject = disclosed.CredentialSubject.Project(fields)
		forged.CredentialSubject["dosage"] = "500mg"
		s.Error(VerifyDerived(forged, s.publicKey(vm)))
	})
}

func (s *KMSSuite) TestDeriveRevealsObjectPrefix() {
	refs, err := s.kms.Provision(doctor, models.KeyTypeBls12381G2)
	s.Require().NoError(err)

	unsigned := unsignedPrescription()
	proof, err := s.kms.Sign(s.ctx, unsigned, refs[0].ID, models.SuiteBBS)
	s.Require().NoError(err)
	unsigned.Proof = &proof

	derived, err := s.kms.Derive(s.ctx, unsigned, []string{"patientInfo"})
	s.Require().NoError(err)
	s.Equal([]string{"patientInfo.insuranceId", "patientInfo.name"}, derived.Revealed)
}

func (s *KMSSuite) TestDerivedProofsAreRandomized() {
	refs, err := s.kms.Provision(doctor, models.KeyTypeBls12381G2)
	s.Require().NoError(err)
	signed := unsignedPrescription()
	proof, err := s.kms.Sign(s.ctx, signed, refs[0].ID, models.SuiteBBS)
	s.Require().NoError(err)
	signed.Proof = &proof

	a, err := s.kms.Derive(s.ctx, signed, []string{"medicationName"})
	s.Require().NoError(err)
	b, err := s.kms.Derive(s.ctx, signed, []string{"medicationName"})
	s.Require().NoError(err)
	s.NotEqual(a.Nonce, b.Nonce)
	s.Equal(a.Revealed, b.Revealed)
}

func (s *KMSSuite) TestJWSSignAndVerify() {
	refs, err := s.kms.Provision(doctor, models.KeyTypeJWK)
	s.Require().NoError(err)
	vm := refs[0].ID

	signed := unsignedPrescription()
	proof, err := s.kms.Sign(s.ctx, signed, vm, models.SuiteJWS)
	s.Require().NoError(err)
	s.NotEmpty(proof.JWS)
	signed.Proof = &proof
	s.Require().NoError(VerifySigned(signed, s.publicKey(vm)))

	signed.CredentialSubject["dosage"] = "5000mg"
	s.Error(VerifySigned(signed, s.publicKey(vm)))
}

func (s *KMSSuite) TestJWSCannotDerive() {
	refs, err := s.kms.Provision(doctor, models.KeyTypeJWK)
	s.Require().NoError(err)
	signed := unsignedPrescription()
	proof, err := s.kms.Sign(s.ctx, signed, refs[0].ID, models.SuiteJWS)
	s.Require().NoError(err)
	signed.Proof = &proof

	_, err = s.kms.Derive(s.ctx, signed, []string{"medicationName"})
	s.True(dErrors.HasCode(err, dErrors.CodeDisclosureUnsupported))
}

func (s *KMSSuite) TestSuiteMustMatchKey() {
	refs, err := s.kms.Provision(doctor, models.KeyTypeJWK)
	s.Require().NoError(err)

	_, err = s.kms.Sign(s.ctx, unsignedPrescription(), refs[0].ID, models.SuiteBBS)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.kms.Sign(s.ctx, unsignedPrescription(), "did:example:doctor-1#missing", models.SuiteJWS)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *KMSSuite) TestExportImport() {
	refs, err := s.kms.Provision(doctor, models.KeyTypeBls12381G2, models.KeyTypeJWK)
	s.Require().NoError(err)
	data, err := s.kms.Export()
	s.Require().NoError(err)

	restoredDocs := identity.NewStatic()
	restored := New(WithDocuments(restoredDocs), WithLogger(logger.Discard()))
	s.Require().NoError(restored.Import(data))

	got, err := restored.Keys(s.ctx, doctor)
	s.Require().NoError(err)
	s.Equal(refs, got)

	signed := unsignedPrescription()
	proof, err := restored.Sign(s.ctx, signed, refs[0].ID, models.SuiteBBS)
	s.Require().NoError(err)
	signed.Proof = &proof
	s.NoError(VerifySigned(signed, refs[0].PublicKeyJwk))
}
