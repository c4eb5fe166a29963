package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Protocol-Lattice/go-companion/src/telegram"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Run the Telegram bot. Updates are long-polled unless
telegram.webhook_addr is set, in which case an HTTP server receives them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(true); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
}

func serve(ctx context.Context, c *cli) error {
	a, err := buildApp(ctx, c.cfg, c.log, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.log.Warn("shutdown", zap.Error(err))
		}
	}()

	tc := c.cfg.Telegram
	bot, err := telegram.New(telegram.Options{
		API:            telegram.NewAPI(nil, tc.BaseURL, tc.Token),
		Conversations:  a.Controller,
		BotName:        tc.BotName,
		AllowedChatIDs: tc.AllowedChatIDs,
		PollTimeout:    tc.PollTimeout,
		WebhookSecret:  tc.WebhookSecret,
		Logger:         c.log.Named("telegram"),
	})
	if err != nil {
		return err
	}

	if tc.WebhookAddr != "" {
		return bot.ServeWebhook(ctx, tc.WebhookAddr, tc.WebhookPath, tc.WebhookURL)
	}
	return bot.Run(ctx)
}
