package local

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"rxvc/internal/credential/models"
)

// edKey signs JsonWebSignature2020 proofs with EdDSA.
type edKey struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func newEdKey() (*edKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &edKey{private: priv, public: pub}, nil
}

func edKeyFromSeed(seed []byte) (*edKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &edKey{private: priv, public: priv.Public().(ed25519.PublicKey)}, nil
}

func (k *edKey) jwk() (models.JWK, error) {
	key, err := jwk.FromRaw(k.public)
	if err != nil {
		return models.JWK{}, fmt.Errorf("jwk from raw: %w", err)
	}
	data, err := json.Marshal(key)
	if err != nil {
		return models.JWK{}, fmt.Errorf("encode jwk: %w", err)
	}
	var out models.JWK
	if err := json.Unmarshal(data, &out); err != nil {
		return models.JWK{}, fmt.Errorf("decode jwk: %w", err)
	}
	return out, nil
}

func edPublicFromJWK(j models.JWK) (ed25519.PublicKey, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode jwk: %w", err)
	}
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	var pub ed25519.PublicKey
	if err := key.Raw(&pub); err != nil {
		return nil, fmt.Errorf("raw jwk: %w", err)
	}
	return pub, nil
}

// signDetached returns a compact JWS over payload with the payload omitted.
func (k *edKey) signDetached(payload []byte, kid string) (string, error) {
	hdr := jws.NewHeaders()
	_ = hdr.Set(jws.KeyIDKey, kid)

	signed, err := jws.Sign(nil,
		jws.WithKey(jwa.EdDSA, k.private, jws.WithProtectedHeaders(hdr)),
		jws.WithDetachedPayload(payload),
	)
	if err != nil {
		return "", fmt.Errorf("jws sign: %w", err)
	}
	return string(signed), nil
}

func verifyDetached(compact string, payload []byte, pub ed25519.PublicKey) error {
	if _, err := jws.Verify([]byte(compact),
		jws.WithKey(jwa.EdDSA, pub),
		jws.WithDetachedPayload(payload),
	); err != nil {
		return fmt.Errorf("%w: %v", errInvalidSignature, err)
	}
	return nil
}

// canonical encodes the unsigned credential. Struct field order is fixed
// and map keys are sorted, so equal credentials encode identically.
func canonical(c models.Credential) ([]byte, error) {
	data, err := json.Marshal(c.Unsigned())
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	return data, nil
}
