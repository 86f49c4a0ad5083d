package local

import (
	"encoding/base64"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"

	"rxvc/internal/credential/models"
)

// VerifySigned checks a signed credential against the issuer's public key
// as published in its identity document.
func VerifySigned(c models.Credential, pub models.JWK) error {
	if c.Proof == nil {
		return fmt.Errorf("credential is not signed")
	}
	switch c.Proof.Type {
	case models.SuiteBBS:
		pk, err := blsPublicFromJWK(pub)
		if err != nil {
			return err
		}
		return verifyBBS(c, &pk)
	case models.SuiteJWS:
		edPub, err := edPublicFromJWK(pub)
		if err != nil {
			return err
		}
		payload, err := canonical(c)
		if err != nil {
			return err
		}
		return verifyDetached(c.Proof.JWS, payload, edPub)
	default:
		return fmt.Errorf("unsupported proof type %q", c.Proof.Type)
	}
}

func verifyBBS(c models.Credential, pk *bls12381.G2Affine) error {
	var sp signedPayload
	if err := decodePayload(c.Proof.ProofValue, &sp); err != nil {
		return fmt.Errorf("malformed proof: %w", err)
	}
	sig, err := decodeG1(sp.Signature)
	if err != nil {
		return err
	}
	digests := make(map[string][]byte)
	for _, path := range c.CredentialSubject.Paths() {
		salt, err := decodeSalt(sp.Salts, path)
		if err != nil {
			return err
		}
		v, _ := c.CredentialSubject.Lookup(path)
		if digests[path], err = fieldDigest(salt, path, v); err != nil {
			return err
		}
	}
	if len(digests) != len(sp.Salts) {
		return fmt.Errorf("%w: field set changed", errInvalidSignature)
	}
	msg, err := message(headerOf(c, c.Proof.VerificationMethod), digests)
	if err != nil {
		return err
	}
	return blsVerify(pk, msg, &sig)
}

// VerifyDerived checks a disclosure: every revealed field must match its
// salted digest and, together with the hidden digests, reproduce the
// message the issuer signed.
func VerifyDerived(c models.Credential, pub models.JWK) error {
	if c.Proof == nil || c.Proof.Type != models.SuiteBBSProof {
		return fmt.Errorf("credential does not carry a derived proof")
	}
	pk, err := blsPublicFromJWK(pub)
	if err != nil {
		return err
	}
	var dp derivedPayload
	if err := decodePayload(c.Proof.ProofValue, &dp); err != nil {
		return fmt.Errorf("malformed proof: %w", err)
	}
	sig, err := decodeG1(dp.Signature)
	if err != nil {
		return err
	}

	digests := make(map[string][]byte)
	for _, path := range c.CredentialSubject.Paths() {
		salt, err := decodeSalt(dp.Salts, path)
		if err != nil {
			return err
		}
		v, _ := c.CredentialSubject.Lookup(path)
		if digests[path], err = fieldDigest(salt, path, v); err != nil {
			return err
		}
	}
	if len(digests) != len(dp.Salts) {
		return fmt.Errorf("%w: revealed fields are missing", errInvalidSignature)
	}
	for path, enc := range dp.Hidden {
		if _, clash := digests[path]; clash {
			return fmt.Errorf("%w: %s is both revealed and hidden", errInvalidSignature, path)
		}
		d, err := base64.RawURLEncoding.DecodeString(enc)
		if err != nil {
			return fmt.Errorf("decode digest %s: %w", path, err)
		}
		digests[path] = d
	}

	msg, err := message(headerOf(c, c.Proof.VerificationMethod), digests)
	if err != nil {
		return err
	}
	return blsVerify(&pk, msg, &sig)
}

func decodeSalt(salts map[string]string, path string) ([]byte, error) {
	enc, ok := salts[path]
	if !ok {
		return nil, fmt.Errorf("%w: no salt for %s", errInvalidSignature, path)
	}
	salt, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("decode salt %s: %w", path, err)
	}
	return salt, nil
}
