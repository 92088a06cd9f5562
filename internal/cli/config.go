package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newQuestionsCommand(a *app) *cobra.Command {
	var random bool

	cmd := &cobra.Command{
		Use:   "questions",
		Short: "List practice questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close(cmd.Context())

			out := cmd.OutOrStdout()
			if random {
				fmt.Fprintln(out, services.Questions.Random())
				return nil
			}
			table := newTable(out, "#", "Question")
			for i, q := range services.Questions.All() {
				table.Append([]string{fmt.Sprint(i + 1), q})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&random, "random", false, "print one random question")
	return cmd
}
