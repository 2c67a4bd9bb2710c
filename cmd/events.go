/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/openledger/apiserver/config"
	"github.com/openledger/apiserver/internal/logging"
	"github.com/openledger/apiserver/internal/mq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// eventsCmd groups commands that work with the ledger event queues.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect ledger events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log account and transfer events as they are published",
	Long: `Consumes the ledger.accounts and ledger.transfers queues and logs every
event until interrupted. Requires RABBITMQ_URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if cfg.RabbitMQ.URL == "" {
			return errors.New("RABBITMQ_URL is required")
		}

		logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return err
		}
		queue := mq.New(client)
		defer func() { _ = queue.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return tailEvents(ctx, queue, logger, mq.QueueAccounts, mq.QueueTransfers)
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}

// tailEvents logs every message of the given queues until ctx is done.
func tailEvents(ctx context.Context, queue *mq.MQ, logger logging.Logger, channels ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, channel := range channels {
		g.Go(func() error {
			err := queue.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
				var payload map[string]any
				if err := json.Unmarshal(msg.Data, &payload); err != nil {
					logger.Warn(ctx, "undecodable event", "queue", channel, "id", msg.ID, "error", err)
					return nil
				}
				logger.Info(ctx, "event",
					"queue", channel,
					"id", msg.ID,
					"type", msg.Attributes[mq.AttrEventType],
					"payload", payload,
				)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
