package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishant160406/soft-skill-ai-coach/internal/practice"
)

func newReportCommand(a *app) *cobra.Command {
	var (
		scope  string
		asJSON bool
		reset  bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise a stored practice session",
		Long: `Print the scores of a practice session kept in the store. Sessions survive
the process only with the sqlite store driver.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if scope == "" {
				return errors.New("--session is required")
			}

			services, err := a.services(ctx)
			if err != nil {
				return err
			}
			defer services.Close(ctx)

			report, err := services.Practice.Report(ctx, scope)
			if errors.Is(err, practice.ErrNoResults) {
				return fmt.Errorf("no practice results for session %s", scope)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("failed to encode report: %w", err)
				}
			} else {
				renderReport(out, report)
			}

			if reset {
				return services.Practice.Reset(ctx, scope)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "session", "", "practice session id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&reset, "reset", false, "forget the session after printing")
	return cmd
}
