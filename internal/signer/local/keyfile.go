package local

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"rxvc/internal/credential/models"
	"rxvc/pkg/domain"
)

// keyFile is the on-disk export format. It contains private key material.
type keyFile struct {
	Keys []keyEntry `json:"keys"`
}

type keyEntry struct {
	ID         string         `json:"id"`
	Controller string         `json:"controller"`
	Type       models.KeyType `json:"type"`
	Secret     string         `json:"secret"`
}

// Export serializes every key, private parts included.
func (k *KMS) Export() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var f keyFile
	for _, controller := range slices.Sorted(maps.Keys(k.byController)) {
		for _, id := range k.byController[controller] {
			nk := k.keys[id]
			var secret []byte
			if nk.bls != nil {
				secret = nk.bls.secretBytes()
			} else {
				secret = nk.ed.private.Seed()
			}
			f.Keys = append(f.Keys, keyEntry{
				ID:         nk.id,
				Controller: nk.controller.String(),
				Type:       nk.keyType,
				Secret:     base64.RawURLEncoding.EncodeToString(secret),
			})
		}
	}
	return json.MarshalIndent(f, "", "  ")
}

// Import loads keys produced by Export and republishes the documents of
// their controllers. Keys already held are replaced.
func (k *KMS) Import(data []byte) error {
	var f keyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode key file: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	touched := map[domain.DID]bool{}
	for _, e := range f.Keys {
		controller, err := domain.ParseDID(e.Controller)
		if err != nil {
			return fmt.Errorf("key %s: %w", e.ID, err)
		}
		if domain.ControllerOf(e.ID) != controller {
			return fmt.Errorf("key %s is not controlled by %s", e.ID, controller)
		}
		secret, err := base64.RawURLEncoding.DecodeString(e.Secret)
		if err != nil {
			return fmt.Errorf("key %s: decode secret: %w", e.ID, err)
		}

		nk := &key{id: e.ID, controller: controller, keyType: e.Type}
		switch e.Type {
		case models.KeyTypeBls12381G2:
			nk.bls, err = blsKeyFromBytes(secret)
		case models.KeyTypeJWK:
			nk.ed, err = edKeyFromSeed(secret)
		default:
			err = fmt.Errorf("unsupported key type %q", e.Type)
		}
		if err != nil {
			return fmt.Errorf("key %s: %w", e.ID, err)
		}
		if _, exists := k.keys[nk.id]; !exists {
			k.byController[controller] = append(k.byController[controller], nk.id)
		}
		k.keys[nk.id] = nk
		touched[controller] = true
	}
	for controller := range touched {
		if err := k.publishLocked(controller); err != nil {
			return err
		}
	}
	return nil
}
