// roiboard-notifier tails the edit-request event stream and logs each
// lifecycle transition. It is the integration point for downstream alerting:
// replace the log handler with a pager or chat hook as needed.
package main

import (
	"context"
	"errors"
	"os"

	"roiboard/internal/amqp"
	"roiboard/internal/cli"
	applog "roiboard/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap()

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the notifier")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Starting roiboard-notifier",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	err := amqp.ConsumeWithReconnect(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, func(msg *amqp.RequestEventMessage) error {
		logger.Info("Edit request event",
			applog.FieldComponent, applog.ComponentNotifier,
			applog.FieldEvent, msg.Event,
			applog.FieldEditRequestID, msg.RequestID,
			applog.FieldEntryID, msg.EntryID,
			applog.FieldFieldPath, msg.FieldPath,
			applog.FieldStatus, msg.Status,
			applog.FieldActorID, msg.RequestedBy)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Notifier stopped gracefully")
}
