package local

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"slices"
	"strings"
	"time"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/crypto/hkdf"

	"rxvc/internal/credential/models"
)

const (
	blsCurve = "BLS12381_G2"
	saltSize = 16
)

var hashDST = []byte("RXVC_BLS12381G1_XMD:SHA-256_SSWU_RO_")

// blsKey signs in G1 with its public key in G2.
type blsKey struct {
	secret fr.Element
	public bls12381.G2Affine
}

func newBLSKey() (*blsKey, error) {
	var sk fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, fmt.Errorf("generate bls secret: %w", err)
	}
	return blsKeyFromSecret(sk), nil
}

func blsKeyFromSecret(sk fr.Element) *blsKey {
	_, _, _, g2 := bls12381.Generators()
	var s big.Int
	sk.BigInt(&s)
	k := &blsKey{secret: sk}
	k.public.ScalarMultiplication(&g2, &s)
	return k
}

func (k *blsKey) secretBytes() []byte {
	b := k.secret.Bytes()
	return b[:]
}

// jwk publishes the uncompressed public key split into its two coordinates.
func (k *blsKey) jwk() models.JWK {
	return blsJWK(&k.public)
}

func blsJWK(pk *bls12381.G2Affine) models.JWK {
	raw := pk.RawBytes()
	half := len(raw) / 2
	return models.JWK{
		Kty: "EC",
		Crv: blsCurve,
		X:   base64.RawURLEncoding.EncodeToString(raw[:half]),
		Y:   base64.RawURLEncoding.EncodeToString(raw[half:]),
	}
}

func blsPublicFromJWK(j models.JWK) (bls12381.G2Affine, error) {
	var pk bls12381.G2Affine
	if j.Crv != blsCurve {
		return pk, fmt.Errorf("unsupported curve %q", j.Crv)
	}
	x, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return pk, fmt.Errorf("decode x: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(j.Y)
	if err != nil {
		return pk, fmt.Errorf("decode y: %w", err)
	}
	if _, err := pk.SetBytes(append(x, y...)); err != nil {
		return pk, fmt.Errorf("decode public key: %w", err)
	}
	return pk, nil
}

// salt derives the per-field salt from the key secret, so the signer can
// rebuild it at derivation time without storing it.
func (k *blsKey) salt(credentialID, path string) ([]byte, error) {
	r := hkdf.New(sha256.New, k.secretBytes(), []byte(credentialID), []byte(path))
	out := make([]byte, saltSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive salt: %w", err)
	}
	return out, nil
}

func (k *blsKey) sign(msg []byte) (bls12381.G1Affine, error) {
	h, err := bls12381.HashToG1(msg, hashDST)
	if err != nil {
		return bls12381.G1Affine{}, fmt.Errorf("hash to curve: %w", err)
	}
	var s big.Int
	k.secret.BigInt(&s)
	var sig bls12381.G1Affine
	sig.ScalarMultiplication(&h, &s)
	return sig, nil
}

func blsVerify(pk *bls12381.G2Affine, msg []byte, sig *bls12381.G1Affine) error {
	h, err := bls12381.HashToG1(msg, hashDST)
	if err != nil {
		return fmt.Errorf("hash to curve: %w", err)
	}
	var negH bls12381.G1Affine
	negH.Neg(&h)
	_, _, _, g2 := bls12381.Generators()
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{*sig, negH},
		[]bls12381.G2Affine{g2, *pk},
	)
	if err != nil {
		return fmt.Errorf("pairing check: %w", err)
	}
	if !ok {
		return errInvalidSignature
	}
	return nil
}

func encodeG1(p *bls12381.G1Affine) string {
	b := p.Bytes()
	return base64.RawURLEncoding.EncodeToString(b[:])
}

func decodeG1(s string) (bls12381.G1Affine, error) {
	var p bls12381.G1Affine
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("decode signature: %w", err)
	}
	if _, err := p.SetBytes(b); err != nil {
		return p, fmt.Errorf("decode signature: %w", err)
	}
	return p, nil
}

// header is the part of a credential signed as a whole. The subject id is
// always revealed.
type header struct {
	Context            []string `json:"@context"`
	ID                 string   `json:"id"`
	Type               []string `json:"type"`
	Issuer             string   `json:"issuer"`
	IssuanceDate       string   `json:"issuanceDate"`
	SubjectID          string   `json:"subjectId"`
	VerificationMethod string   `json:"verificationMethod"`
}

func headerOf(c models.Credential, vm string) header {
	return header{
		Context:            c.Context,
		ID:                 c.ID,
		Type:               c.Type,
		Issuer:             c.Issuer,
		IssuanceDate:       c.IssuanceDate.UTC().Format(time.RFC3339),
		SubjectID:          c.SubjectID(),
		VerificationMethod: vm,
	}
}

// fieldDigest binds a salted path to its value.
func fieldDigest(salt []byte, path string, value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(v)
	return h.Sum(nil), nil
}

// message is the byte string signed: the header followed by every field
// digest in path order.
func message(h header, digests map[string][]byte) ([]byte, error) {
	hb, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	paths := make([]string, 0, len(digests))
	for p := range digests {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	var b strings.Builder
	b.Write(hb)
	for _, p := range paths {
		b.WriteByte('\n')
		b.WriteString(p)
		b.WriteByte(':')
		b.WriteString(hex.EncodeToString(digests[p]))
	}
	return []byte(b.String()), nil
}

// digestsFor computes the salted digest of every leaf field.
func (k *blsKey) digestsFor(c models.Credential) (map[string][]byte, map[string][]byte, error) {
	paths := c.CredentialSubject.Paths()
	digests := make(map[string][]byte, len(paths))
	salts := make(map[string][]byte, len(paths))
	for _, p := range paths {
		v, _ := c.CredentialSubject.Lookup(p)
		salt, err := k.salt(c.ID, p)
		if err != nil {
			return nil, nil, err
		}
		d, err := fieldDigest(salt, p, v)
		if err != nil {
			return nil, nil, err
		}
		digests[p] = d
		salts[p] = salt
	}
	return digests, salts, nil
}

// derivedPayload is the proofValue of a derived proof: the original
// signature, salts of revealed fields and digests of hidden ones.
type derivedPayload struct {
	Signature string            `json:"signature"`
	Salts     map[string]string `json:"salts"`
	Hidden    map[string]string `json:"hidden"`
}

func blsKeyFromBytes(b []byte) (*blsKey, error) {
	if len(b) != fr.Bytes {
		return nil, fmt.Errorf("bls secret must be %d bytes", fr.Bytes)
	}
	var sk fr.Element
	sk.SetBytes(b)
	if sk.IsZero() {
		return nil, fmt.Errorf("bls secret is zero")
	}
	return blsKeyFromSecret(sk), nil
}
