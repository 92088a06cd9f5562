package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nishant160406/soft-skill-ai-coach/internal/bootstrap"
	"github.com/nishant160406/soft-skill-ai-coach/internal/config"
)

// builder assembles services; tests swap it for a fake graph.
type builder func(ctx context.Context, cfg config.Config, logger *log.Logger) (*bootstrap.Services, error)

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *log.Logger
	build   builder
}

// NewRootCommand returns the coach command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(bootstrap.Build)
}

func newRootCommand(build builder) *cobra.Command {
	a := &app{v: config.New(), build: build}

	root := &cobra.Command{
		Use:   "coach",
		Short: "Practice interview answers by voice and get scored feedback",
		Long: `coach records spoken answers, transcribes them live and sends them to the
evaluation service for clarity, confidence and tone scores.

Run "coach practice" for the terminal practice screen or "coach serve" to
expose the same session over HTTP and websockets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Decode(a.v, a.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg
			a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
			log.SetDefault(a.logger)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json, logfmt")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newServeCommand(a),
		newPracticeCommand(a),
		newAnalyzeCommand(a),
		newReportCommand(a),
		newQuestionsCommand(a),
		newConfigCommand(a),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) services(ctx context.Context) (*bootstrap.Services, error) {
	services, err := a.build(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return services, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "coach",
	})
	switch cfg.Format {
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	case "logfmt":
		logger.SetFormatter(log.LogfmtFormatter)
	default:
		logger.SetFormatter(log.TextFormatter)
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
		logger.Warn("unknown log level, using info", "level", cfg.Level)
	}
	logger.SetLevel(level)
	return logger
}
