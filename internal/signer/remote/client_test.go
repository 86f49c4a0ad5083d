package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"rxvc/internal/credential/models"
	"rxvc/internal/identity"
	"rxvc/internal/platform/logger"
	"rxvc/internal/signer/local"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
	"rxvc/pkg/platform/circuit"
)

const doctor = domain.DID("did:example:doctor-1")

type ClientSuite struct {
	suite.Suite
	kms    *local.KMS
	server *httptest.Server
	client *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.kms = local.New(local.WithDocuments(identity.NewStatic()), local.WithLogger(logger.Discard()))
	r := chi.NewRouter()
	NewHandler(s.kms, logger.Discard()).Register(r)
	s.server = httptest.NewServer(r)
	s.T().Cleanup(s.server.Close)
	s.client = New(s.server.URL, time.Second, WithLogger(logger.Discard()))
}

func unsigned() models.Credential {
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
		},
	}
}

func (s *ClientSuite) TestSignAndDeriveOverHTTP() {
	ctx := context.Background()
	_, err := s.kms.Provision(doctor, models.KeyTypeBls12381G2)
	s.Require().NoError(err)

	keys, err := s.client.Keys(ctx, doctor)
	s.Require().NoError(err)
	s.Require().Len(keys, 1)

	cred := unsigned()
	proof, err := s.client.Sign(ctx, cred, keys[0].ID, models.SuiteBBS)
	s.Require().NoError(err)
	cred.Proof = &proof
	s.Require().NoError(local.VerifySigned(cred, keys[0].PublicKeyJwk))

	derived, err := s.client.Derive(ctx, cred, []string{"medicationName"})
	s.Require().NoError(err)
	s.Equal([]string{"medicationName"}, derived.Revealed)
}

func (s *ClientSuite) TestDomainErrorsPassThrough() {
	ctx := context.Background()
	_, err := s.kms.Provision(doctor, models.KeyTypeJWK)
	s.Require().NoError(err)

	cred := unsigned()
	proof, err := s.client.Sign(ctx, cred, "did:example:doctor-1#jws-1", models.SuiteJWS)
	s.Require().NoError(err)
	cred.Proof = &proof

	_, err = s.client.Derive(ctx, cred, []string{"medicationName"})
	s.True(dErrors.HasCode(err, dErrors.CodeDisclosureUnsupported))

	_, err = s.client.Sign(ctx, unsigned(), "did:example:doctor-1#jws-9", models.SuiteJWS)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.False(s.client.breaker.IsOpen(), "domain errors do not trip the breaker")
}

func (s *ClientSuite) TestOutageOpensCircuit() {
	var calls atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	client := New(down.URL, time.Second,
		WithBreaker(circuit.New("kms", circuit.WithFailureThreshold(2))),
		WithLogger(logger.Discard()),
	)
	for range 2 {
		_, err := client.Sign(context.Background(), unsigned(), "did:example:doctor-1#bbs-1", models.SuiteBBS)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	}

	_, err := client.Sign(context.Background(), unsigned(), "did:example:doctor-1#bbs-1", models.SuiteBBS)
	s.ErrorIs(err, ErrCircuitOpen)
	s.Equal(int32(2), calls.Load(), "open circuit makes no call and never retries")
}

func (s *ClientSuite) TestServesIdentityDocuments() {
	ctx := context.Background()
	_, err := s.kms.Provision(doctor, models.KeyTypeBls12381G2, models.KeyTypeJWK)
	s.Require().NoError(err)

	resolver := identity.NewHTTPResolver(s.server.URL, time.Second, identity.WithLogger(logger.Discard()))
	doc, err := resolver.Resolve(ctx, doctor)
	s.Require().NoError(err)
	s.Len(doc.MethodsOfType(models.KeyTypeBls12381G2), 1)
	s.Len(doc.MethodsOfType(models.KeyTypeJWK), 1)

	_, err = resolver.Resolve(ctx, domain.DID("did:example:stranger"))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
