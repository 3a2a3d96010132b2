package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zsprackett/event-reserve/internal/client"
	"github.com/zsprackett/event-reserve/internal/notify"
	"github.com/zsprackett/event-reserve/internal/protocol"
	"github.com/zsprackett/event-reserve/internal/transport"
)

func newClientCmd() *cobra.Command {
	var (
		url     string
		reserve []string
	)
	cmd := &cobra.Command{
		Use:   "client [flags]",
		Short: "follow event updates and optionally reserve",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]protocol.EventID, 0, len(reserve))
			for _, r := range reserve {
				if r == "" {
					return fmt.Errorf("cmd_client: --reserve: empty event id")
				}
				ids = append(ids, protocol.ParseEventID(r))
			}

			cfg, logger, closeLog, err := setup("client")
			if err != nil {
				return err
			}
			defer closeLog()
			if url != "" {
				cfg.Client.URL = url
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn := transport.Connect(ctx, cfg.Client.URL,
				transport.WithLogger(logger),
				transport.WithSendBuffer(cfg.Client.SendBuffer))
			defer conn.Close()

			n := notify.New(notify.Config{Webhook: cfg.Client.Webhook}, logger)
			defer n.Close()
			c := client.New(conn, n, logger)

			var once sync.Once
			c.OnAccessGranted(func() {
				once.Do(func() {
					for _, id := range ids {
						c.RequestReservation(id)
					}
				})
			})

			logger.Info("cmd: client started", "url", cfg.Client.URL, "reserve", len(ids))
			<-ctx.Done()
			logger.Info("cmd: client stopping")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "server websocket URL, overrides the config")
	cmd.Flags().StringArrayVar(&reserve, "reserve", nil, "event id to reserve once access is granted (repeatable)")
	return cmd
}
