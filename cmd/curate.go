package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCurateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "curate",
		Short: "Runs one curator pass over the configured catalog",
		Long: `Loads the catalog, verifies every resource, advances each status and
writes the catalog back. Nothing is written when loading, verifying or
saving fails. The execution result is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: runCurateCommand,
	}
}

func runCurateCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	res := appInstance.Execute(cmd.Context())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if !res.Succeeded() {
		return fmt.Errorf("curator run failed: %s", res.Message)
	}
	appInstance.Logger.Info("curate command finished", zap.String("run_id", res.RunID))
	return nil
}
