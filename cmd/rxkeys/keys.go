package main

import (
	"github.com/spf13/cobra"

	"rxvc/internal/identity"
	"rxvc/internal/signer/local"
	"rxvc/pkg/domain"
)

func parseDID(s string) (domain.DID, error) {
	return domain.ParseDID(s)
}

func newKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen <did>",
		Short: "Generate keys for a controller and append them to the key file",
		Example: `  rxkeys keygen did:example:doctor-1
  rxkeys keygen did:example:doctor-1 --type jwk --keys ./dev-keys.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			did, err := parseDID(args[0])
			if err != nil {
				return err
			}
			names, _ := cmd.Flags().GetStringSlice("type")
			types, err := parseKeyTypes(names)
			if err != nil {
				return err
			}
			kms, path, err := openKMS(cmd)
			if err != nil {
				return err
			}
			refs, err := kms.Provision(did, types...)
			if err != nil {
				return err
			}
			if err := saveKMS(kms, path); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), refs)
		},
	}
	cmd.Flags().StringSliceP("type", "t", []string{"bls"}, "key types to generate: bls, jwk")
	return cmd
}

func newDIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "did <did>",
		Short: "Print the identity document publishing a controller's keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kms, _, err := openKMS(cmd)
			if err != nil {
				return err
			}
			doc, err := documentOf(kms, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func documentOf(kms *local.KMS, controller string) (identity.Document, error) {
	did, err := parseDID(controller)
	if err != nil {
		return identity.Document{}, err
	}
	return kms.Document(did)
}
