package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/echoscribe/internal/config"
	"github.com/user/echoscribe/internal/telegram"
)

func init() {
	webhookCmd.AddCommand(webhookSetCmd)
	webhookCmd.AddCommand(webhookDeleteCmd)
	rootCmd.AddCommand(webhookCmd)
}

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the Telegram webhook registration",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Register WEBHOOK_URL with the shared secret token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required to register the webhook")
		}
		messenger, err := telegram.New(cfg.TelegramBotToken, cfg.MaxFileSize())
		if err != nil {
			return err
		}
		if err := messenger.SetWebhook(cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			return err
		}
		fmt.Printf("webhook registered: %s\n", cfg.WebhookURL)
		return nil
	},
}

var webhookDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Unregister the webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		messenger, err := telegram.New(cfg.TelegramBotToken, cfg.MaxFileSize())
		if err != nil {
			return err
		}
		if err := messenger.DeleteWebhook(); err != nil {
			return err
		}
		fmt.Println("webhook deleted")
		return nil
	},
}
