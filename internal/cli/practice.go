package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nishant160406/soft-skill-ai-coach/internal/tui"
)

func newPracticeCommand(a *app) *cobra.Command {
	var (
		language string
		scope    string
	)

	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Open the terminal practice screen",
		Long: `Answer practice questions by voice. Space toggles recording, enter submits the
transcript for scoring, p plays the spoken feedback and q quits. A summary
of the session is printed on exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if language == "" {
				language = a.cfg.Session.Language
			}
			if scope == "" {
				scope = uuid.NewString()
			}

			// The practice screen owns the terminal. Components keep the writer they
			// were built with, so silence the logger before building them.
			out := cmd.ErrOrStderr()
			a.logger.SetOutput(io.Discard)
			defer a.logger.SetOutput(out)

			services, err := a.services(ctx)
			if err != nil {
				return err
			}
			defer services.Close(ctx)

			err = tui.Run(ctx, tui.Deps{
				Controller:  services.Controller,
				Practice:    services.Practice,
				Questions:   services.Questions,
				Synthesizer: services.Coach,
				Player:      services.Player,
				Language:    language,
				Scope:       scope,
			})
			if err != nil {
				return fmt.Errorf("practice screen failed: %w", err)
			}

			report, err := services.Practice.Report(ctx, scope)
			if err != nil {
				a.logger.Debug("no practice summary", "err", err)
				return nil
			}
			renderReport(cmd.OutOrStdout(), report)
			fmt.Fprintf(cmd.OutOrStdout(), "\nsession: %s\n", scope)
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "recognition language tag (overrides session.language)")
	cmd.Flags().StringVar(&scope, "session", "", "practice session id (default: new id)")
	return cmd
}
