package cli

import (
	"context"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/nishant160406/soft-skill-ai-coach/internal/config"
	"github.com/nishant160406/soft-skill-ai-coach/internal/server"
	"github.com/nishant160406/soft-skill-ai-coach/internal/store"
)

const pruneInterval = 5 * time.Minute

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the practice API and live session events",
		Long: `Start the HTTP server. Browser tabs drive one shared recording session through
/api/session and receive transcript and volume updates on /api/session/events.
Practice answers are kept per tab, keyed by the X-Coach-Tab header.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			origins := a.cfg.Server.AllowedOrigins
			if addr == "" {
				addr = a.cfg.Server.Addr
			} else {
				origins = append(slices.Clone(origins), config.LocalOrigins(addr)...)
			}

			services, err := a.services(ctx)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := services.Close(closeCtx); err != nil {
					a.logger.Warn("shutdown incomplete", "err", err)
				}
			}()

			hub := server.NewHub(a.logger)
			services.Controller.SetListener(hub)
			defer services.Controller.SetListener(nil)

			go store.RunPruner(ctx, services.Store, pruneInterval, a.logger)

			srv := server.New(server.Deps{
				Controller:     services.Controller,
				Practice:       services.Practice,
				Questions:      services.Questions,
				Synthesizer:    services.Coach,
				Hub:            hub,
				Metrics:        services.Telemetry.Handler(),
				Language:       a.cfg.Session.Language,
				AllowedOrigins: origins,
			}, a.logger)

			a.logger.Info("coach server starting", "addr", addr, "supported", services.Controller.Supported())
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
