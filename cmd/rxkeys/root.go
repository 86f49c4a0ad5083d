package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"rxvc/internal/credential/models"
	"rxvc/internal/platform/logger"
	"rxvc/internal/signer/local"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rxkeys",
		Short:         "Prescription credential key tooling",
		Long:          "Generates and inspects dev KMS keys, scores fraud checks and serves the dev KMS.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("keys", "k", "rxvc-keys.json", "key file path")
	root.AddCommand(newKeygenCmd(), newDIDCmd(), newScoreCmd(), newServeCmd())
	return root
}

// openKMS loads the key file into a fresh KMS. A missing file yields an
// empty KMS.
func openKMS(cmd *cobra.Command, opts ...local.Option) (*local.KMS, string, error) {
	path, _ := cmd.Flags().GetString("keys")
	opts = append([]local.Option{local.WithLogger(logger.Discard())}, opts...)
	kms := local.New(opts...)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return kms, path, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if err := kms.Import(data); err != nil {
		return nil, "", fmt.Errorf("load %s: %w", path, err)
	}
	return kms, path, nil
}

func saveKMS(kms *local.KMS, path string) error {
	data, err := kms.Export()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func parseKeyTypes(names []string) ([]models.KeyType, error) {
	out := make([]models.KeyType, 0, len(names))
	for _, n := range names {
		switch n {
		case "bls", string(models.KeyTypeBls12381G2):
			out = append(out, models.KeyTypeBls12381G2)
		case "jwk", "ed25519", string(models.KeyTypeJWK):
			out = append(out, models.KeyTypeJWK)
		default:
			return nil, fmt.Errorf("unknown key type %q (want bls or jwk)", n)
		}
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
