// Package ports declares the collaborators the credential engine calls out
// to. Implementations live in internal/signer and internal/credential/store.
package ports

//go:generate mockgen -source=signer.go -destination=mocks/signer.go -package=mocks Signer

import (
	"context"

	"rxvc/internal/credential/models"
	"rxvc/pkg/domain"
)

// SignerCollaborator is the name used when wrapping signer failures.
const SignerCollaborator = "signer"

// Signer is the KMS that holds issuer keys. It is the only component that
// touches private key material.
type Signer interface {
	// Keys lists the keys held for controller.
	Keys(ctx context.Context, controller domain.DID) ([]models.KeyRef, error)
	// Sign produces a proof over the unsigned credential with the key behind
	// verificationMethod.
	Sign(ctx context.Context, unsigned models.Credential, verificationMethod string, suite models.Suite) (models.Proof, error)
	// Derive produces a disclosure proof revealing only fields of a signed
	// credential. Only disclosure-capable suites support it.
	Derive(ctx context.Context, signed models.Credential, fields []string) (models.Proof, error)
}
