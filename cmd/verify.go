package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <url>...",
		Short: "Probes URLs with the configured verifier and prints live or dead",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runVerifyCommand,
	}
}

func runVerifyCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, u := range args {
		verdict := "dead"
		if appInstance.Verifier.Verify(cmd.Context(), u) {
			verdict = "live"
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", verdict, u); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}
