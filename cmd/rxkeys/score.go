package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"rxvc/internal/fraud"
	"rxvc/internal/platform/config"
)

type scoreOutput struct {
	fraud.Result
	Approvable bool `json:"approvableByScore"`
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score [check...]",
		Short: "Score a set of failed fraud checks with the default weights",
		Example: `  rxkeys score doctor_unauthorized quantity_exceeded
  rxkeys score`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := config.DefaultEngine()
			known := fraud.Checks()
			var failed []string
			for _, name := range known {
				if slices.Contains(args, name) {
					failed = append(failed, name)
				}
			}
			for _, name := range args {
				if !slices.Contains(known, name) {
					return fmt.Errorf("unknown check %q (known: %v)", name, known)
				}
			}
			if failed == nil {
				failed = []string{}
			}
			score := fraud.ScoreFailed(failed, engine.FraudWeights)
			return printJSON(cmd.OutOrStdout(), scoreOutput{
				Result:     fraud.Result{Score: score, Band: fraud.BandFor(score), Failed: failed},
				Approvable: score < engine.Approval.MaxScore,
			})
		},
	}
}
