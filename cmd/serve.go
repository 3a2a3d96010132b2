package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsprackett/event-reserve/internal/admission"
	"github.com/zsprackett/event-reserve/internal/catalog"
	"github.com/zsprackett/event-reserve/internal/monitor"
	"github.com/zsprackett/event-reserve/internal/webserver"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "run the reservation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closeLog, err := setup("serve")
			if err != nil {
				return err
			}
			defer closeLog()

			if addr != "" {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return fmt.Errorf("cmd_serve: --addr: %w", err)
				}
				p, err := strconv.Atoi(port)
				if err != nil {
					return fmt.Errorf("cmd_serve: --addr: %w", err)
				}
				cfg.Server.Host, cfg.Server.Port = host, p
			}

			store := catalog.New()
			for _, seed := range cfg.Server.Events {
				e, err := store.AddEvent(seed.Name, seed.TotalSlots)
				if err != nil {
					return fmt.Errorf("cmd_serve: seed %q: %w", seed.Name, err)
				}
				logger.Info("cmd: event seeded", "event", e.ID, "name", e.Name, "slots", e.TotalSlots)
			}
			admit := admission.New(cfg.Server.MaxActiveUsers, cfg.Server.ChoiceTimeout)

			srv := webserver.New(store, admit, webserver.Config{
				Addr:                cfg.Server.Addr(),
				ConfirmationTimeout: cfg.Server.ConfirmationTTL(),
				SendBuffer:          cfg.Server.SendBuffer,
			}, logger)
			if err := srv.Start(); err != nil {
				return fmt.Errorf("cmd_serve: %w", err)
			}

			mon := monitor.New(admit, store, srv, cfg.Server.CleanupEvery(), logger)
			mon.Start()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			logger.Info("cmd: shutting down")
			mon.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("cmd_serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address host:port, overrides the config")
	return cmd
}
