// Package local is an in-process KMS for development and tests. It holds
// BLS12-381 keys for the disclosure-capable suite and Ed25519 keys for the
// JWS fallback, and publishes the matching identity documents.
package local

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"rxvc/internal/credential/models"
	"rxvc/internal/credential/ports"
	"rxvc/internal/identity"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
)

var errInvalidSignature = errors.New("signature does not verify")

const proofPurpose = "assertionMethod"

type key struct {
	id         string
	controller domain.DID
	keyType    models.KeyType
	bls        *blsKey
	ed         *edKey
}

func (k *key) publicJWK() (models.JWK, error) {
	if k.bls != nil {
		return k.bls.jwk(), nil
	}
	return k.ed.jwk()
}

// KMS holds signing keys per controller. It is safe for concurrent use.
type KMS struct {
	mu           sync.RWMutex
	keys         map[string]*key
	byController map[domain.DID][]string

	documents     *identity.Static
	autoProvision []models.KeyType
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a KMS.
type Option func(*KMS)

// WithDocuments publishes the identity document of every provisioned
// controller into docs.
func WithDocuments(docs *identity.Static) Option {
	return func(k *KMS) { k.documents = docs }
}

// WithAutoProvision generates keys of the given types the first time an
// unknown controller's keys are requested.
func WithAutoProvision(types ...models.KeyType) Option {
	return func(k *KMS) { k.autoProvision = types }
}

func WithLogger(l *slog.Logger) Option {
	return func(k *KMS) {
		if l != nil {
			k.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(k *KMS) {
		if now != nil {
			k.now = now
		}
	}
}

// New creates an empty KMS.
func New(opts ...Option) *KMS {
	k := &KMS{
		keys:         make(map[string]*key),
		byController: make(map[domain.DID][]string),
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Provision generates one key per type for controller and republishes its
// document. Fragments are numbered per type: bbs-1, jws-1, bbs-2...
func (k *KMS) Provision(controller domain.DID, types ...models.KeyType) ([]models.KeyRef, error) {
	if controller.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "controller is required")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.provisionLocked(controller, types)
}

func (k *KMS) provisionLocked(controller domain.DID, types []models.KeyType) ([]models.KeyRef, error) {
	for _, t := range types {
		nk := &key{controller: controller, keyType: t}
		var err error
		switch t {
		case models.KeyTypeBls12381G2:
			nk.bls, err = newBLSKey()
		case models.KeyTypeJWK:
			nk.ed, err = newEdKey()
		default:
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported key type %q", t)
		}
		if err != nil {
			return nil, err
		}
		nk.id = controller.VerificationMethodID(k.nextFragment(controller, t))
		k.add(nk)
	}
	k.logger.Info("keys provisioned", "controller", controller.String(), "types", fmt.Sprint(types))
	if err := k.publishLocked(controller); err != nil {
		return nil, err
	}
	return k.refsLocked(controller)
}

func (k *KMS) nextFragment(controller domain.DID, t models.KeyType) string {
	prefix := "jws-"
	if t == models.KeyTypeBls12381G2 {
		prefix = "bbs-"
	}
	n := 1
	for _, id := range k.byController[controller] {
		if strings.Contains(id, "#"+prefix) {
			n++
		}
	}
	return fmt.Sprintf("%s%d", prefix, n)
}

func (k *KMS) add(nk *key) {
	k.keys[nk.id] = nk
	k.byController[nk.controller] = append(k.byController[nk.controller], nk.id)
}

// Document builds the identity document publishing controller's keys.
func (k *KMS) Document(controller domain.DID) (identity.Document, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.documentLocked(controller)
}

func (k *KMS) documentLocked(controller domain.DID) (identity.Document, error) {
	ids := k.byController[controller]
	if len(ids) == 0 {
		return identity.Document{}, dErrors.NotFound(ports.SignerCollaborator, controller.String())
	}
	methods := make([]identity.VerificationMethod, 0, len(ids))
	for _, id := range ids {
		nk := k.keys[id]
		pub, err := nk.publicJWK()
		if err != nil {
			return identity.Document{}, err
		}
		methods = append(methods, identity.VerificationMethod{
			ID:           id,
			Type:         nk.keyType,
			Controller:   controller.String(),
			PublicKeyJwk: &pub,
		})
	}
	return identity.NewDocument(controller, methods...), nil
}

func (k *KMS) publishLocked(controller domain.DID) error {
	if k.documents == nil {
		return nil
	}
	doc, err := k.documentLocked(controller)
	if err != nil {
		return err
	}
	k.documents.Put(doc)
	return nil
}

func (k *KMS) refsLocked(controller domain.DID) ([]models.KeyRef, error) {
	ids := k.byController[controller]
	refs := make([]models.KeyRef, 0, len(ids))
	for _, id := range ids {
		pub, err := k.keys[id].publicJWK()
		if err != nil {
			return nil, err
		}
		refs = append(refs, models.KeyRef{ID: id, Type: k.keys[id].keyType, PublicKeyJwk: pub})
	}
	return refs, nil
}

// Keys lists controller's keys, provisioning them first when auto
// provisioning is enabled.
func (k *KMS) Keys(_ context.Context, controller domain.DID) ([]models.KeyRef, error) {
	k.mu.RLock()
	refs, err := k.refsLocked(controller)
	k.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 || len(k.autoProvision) == 0 {
		return refs, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.byController[controller]) > 0 {
		return k.refsLocked(controller)
	}
	return k.provisionLocked(controller, k.autoProvision)
}

func (k *KMS) lookup(vm string) (*key, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	nk, ok := k.keys[vm]
	if !ok {
		return nil, dErrors.NotFound(ports.SignerCollaborator, vm)
	}
	return nk, nil
}

// Sign signs unsigned with the key behind verificationMethod.
func (k *KMS) Sign(ctx context.Context, unsigned models.Credential, verificationMethod string, suite models.Suite) (models.Proof, error) {
	if err := ctx.Err(); err != nil {
		return models.Proof{}, err
	}
	if unsigned.IsSigned() {
		return models.Proof{}, dErrors.New(dErrors.CodeInvalidInput, "credential is already signed")
	}
	nk, err := k.lookup(verificationMethod)
	if err != nil {
		return models.Proof{}, err
	}

	proof := models.Proof{
		Type:               suite,
		Created:            k.now().UTC().Truncate(time.Second),
		VerificationMethod: verificationMethod,
		ProofPurpose:       proofPurpose,
	}
	switch {
	case suite == models.SuiteBBS && nk.bls != nil:
		digests, salts, err := nk.bls.digestsFor(unsigned)
		if err != nil {
			return models.Proof{}, err
		}
		msg, err := message(headerOf(unsigned, verificationMethod), digests)
		if err != nil {
			return models.Proof{}, err
		}
		sig, err := nk.bls.sign(msg)
		if err != nil {
			return models.Proof{}, err
		}
		proof.ProofValue, err = encodePayload(signedPayload{Signature: encodeG1(&sig), Salts: encodeAll(salts)})
		if err != nil {
			return models.Proof{}, err
		}
	case suite == models.SuiteJWS && nk.ed != nil:
		payload, err := canonical(unsigned)
		if err != nil {
			return models.Proof{}, err
		}
		if proof.JWS, err = nk.ed.signDetached(payload, verificationMethod); err != nil {
			return models.Proof{}, err
		}
	default:
		return models.Proof{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"key %s (%s) cannot sign %s proofs", verificationMethod, nk.keyType, suite)
	}
	return proof, nil
}

// Derive produces a disclosure proof revealing fields. A field names a leaf
// path or an object whose leaves are all revealed.
func (k *KMS) Derive(ctx context.Context, signed models.Credential, fields []string) (models.Proof, error) {
	if err := ctx.Err(); err != nil {
		return models.Proof{}, err
	}
	if signed.Proof == nil || !signed.Proof.Type.SupportsDisclosure() {
		return models.Proof{}, dErrors.New(dErrors.CodeDisclosureUnsupported,
			"credential proof does not support selective disclosure")
	}
	nk, err := k.lookup(signed.Proof.VerificationMethod)
	if err != nil {
		return models.Proof{}, err
	}
	if nk.bls == nil {
		return models.Proof{}, dErrors.Newf(dErrors.CodeDisclosureUnsupported,
			"key %s is not a disclosure-capable key", nk.id)
	}
	if err := verifyBBS(signed, &nk.bls.public); err != nil {
		return models.Proof{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "signed credential does not verify")
	}

	var sp signedPayload
	if err := decodePayload(signed.Proof.ProofValue, &sp); err != nil {
		return models.Proof{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed proof")
	}
	digests, _, err := nk.bls.digestsFor(signed)
	if err != nil {
		return models.Proof{}, err
	}

	dp := derivedPayload{Signature: sp.Signature, Salts: map[string]string{}, Hidden: map[string]string{}}
	var revealed []string
	for path, d := range digests {
		if reveals(fields, path) {
			dp.Salts[path] = sp.Salts[path]
			revealed = append(revealed, path)
			continue
		}
		dp.Hidden[path] = base64.RawURLEncoding.EncodeToString(d)
	}
	slices.Sort(revealed)

	value, err := encodePayload(dp)
	if err != nil {
		return models.Proof{}, err
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return models.Proof{}, fmt.Errorf("nonce: %w", err)
	}
	return models.Proof{
		Type:               models.SuiteBBSProof,
		Created:            k.now().UTC().Truncate(time.Second),
		VerificationMethod: signed.Proof.VerificationMethod,
		ProofPurpose:       proofPurpose,
		ProofValue:         value,
		Nonce:              base64.RawURLEncoding.EncodeToString(nonce),
		Revealed:           revealed,
	}, nil
}

func reveals(fields []string, path string) bool {
	for _, f := range fields {
		if path == f || strings.HasPrefix(path, f+".") {
			return true
		}
	}
	return false
}

// signedPayload is the proofValue of a signed proof.
type signedPayload struct {
	Signature string            `json:"signature"`
	Salts     map[string]string `json:"salts"`
}

func encodeAll(in map[string][]byte) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = base64.RawURLEncoding.EncodeToString(v)
	}
	return out
}

func encodePayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode proof: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodePayload(s string, v any) error {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

var _ ports.Signer = (*KMS)(nil)
