// Package resolver selects the verification method and signature suite an
// issuer signs with, given its identity document and the keys its signer
// holds.
package resolver

import (
	"strings"

	"rxvc/internal/credential/models"
	"rxvc/internal/identity"
	dErrors "rxvc/pkg/domain-errors"
)

// ResolveSigningKey prefers a Bls12381G2Key2020 method whose public JWK
// matches a held key exactly (both x and y), giving the disclosure-capable
// suite. Otherwise it falls back to a JsonWebKey2020 method, matched by type
// only. The document's method order breaks ties.
func ResolveSigningKey(doc identity.Document, keys []models.KeyRef) (models.Selection, error) {
	for _, vm := range doc.MethodsOfType(models.KeyTypeBls12381G2) {
		if vm.PublicKeyJwk == nil {
			continue
		}
		for _, key := range keys {
			if key.Type != models.KeyTypeBls12381G2 {
				continue
			}
			if vm.PublicKeyJwk.SameKey(key.PublicKeyJwk) {
				return models.Selection{
					VerificationMethod: vm.ID,
					Suite:              models.SuiteBBS,
					KeyType:            models.KeyTypeBls12381G2,
				}, nil
			}
		}
	}

	if methods := doc.MethodsOfType(models.KeyTypeJWK); len(methods) > 0 {
		return models.Selection{
			VerificationMethod: methods[0].ID,
			Suite:              models.SuiteJWS,
			KeyType:            models.KeyTypeJWK,
		}, nil
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.ID)
	}
	return models.Selection{}, dErrors.Newf(dErrors.CodeNoCompatibleKey,
		"no compatible key for %s: document methods [%s], available keys [%s]",
		doc.ID, strings.Join(doc.MethodTypes(), ", "), strings.Join(ids, ", "))
}
