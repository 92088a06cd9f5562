package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

func newAnalyzeCommand(a *app) *cobra.Command {
	var question string

	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Score a written answer",
		Long: `Score text with the evaluation service. The text is read from the arguments,
or from stdin when none are given. With --question the answer is scored
against that question; otherwise it is analysed as free-form speech.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(raw)
			}

			services, err := a.services(ctx)
			if err != nil {
				return err
			}
			defer services.Close(ctx)

			var result domain.QuestionResult
			if question != "" {
				result, err = services.Practice.Submit(ctx, "cli", question, text)
			} else {
				result, err = services.Practice.Analyze(ctx, text)
			}
			if err != nil {
				return err
			}
			renderResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "practice question the text answers")
	return cmd
}
