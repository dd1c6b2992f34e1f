package cli

import (
	"errors"
	"strings"

	telegramrepo "tripbot/repository/telegram"
	"tripbot/util/httpx"

	"github.com/spf13/cobra"
)

func setWebhookCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Point the bot's webhook at this deployment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.BotToken == "" {
				return errors.New("BOT_TOKEN is required")
			}
			if url == "" {
				url = cfg.WebhookURL
			}
			if url == "" {
				return errors.New("webhook url missing: pass --url or set WEBHOOK_URL")
			}
			if !strings.HasSuffix(url, "/telegram") {
				url = strings.TrimRight(url, "/") + "/telegram"
			}

			tg := telegramrepo.NewHTTP(cfg.TelegramAPIURL, cfg.BotToken, httpx.Client())
			if err := tg.SetWebhook(cmd.Context(), url, cfg.WebhookSecret); err != nil {
				return err
			}
			newLogger().Info("webhook set", "url", url, "secret", cfg.WebhookSecret != "")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "public base URL (default WEBHOOK_URL)")
	return cmd
}
