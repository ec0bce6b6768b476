package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskdesk/taskctl/internal/app"
)

func newDevServerCommand(rt *runtime) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run an in-memory backend for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rt.cfg
			if cmd.Flags().Changed("addr") {
				cfg.DevServer.Addr = addr
			}
			d, err := app.NewDevServer(cfg, rt.log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			rt.printf("dev backend listening on %s\n", cfg.DevServer.Addr)
			return d.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides DEV_SERVER_ADDR)")
	return cmd
}

func newDBWaitCommand(rt *runtime) *cobra.Command {
	var (
		dsn     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "db-wait",
		Short: "Wait until the session database accepts connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				dsn = rt.cfg.Session.DatabaseURL
			}
			if err := app.WaitForPostgres(cmd.Context(), dsn, timeout, 2*time.Second); err != nil {
				return err
			}
			rt.printf("postgres ready\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "database URL (defaults to DATABASE_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "how long to keep trying")
	return cmd
}
