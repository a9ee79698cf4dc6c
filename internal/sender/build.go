package sender

import (
	"github.com/rs/zerolog"

	"reminder-engine/internal/config"
	"reminder-engine/internal/models"
)

// Build wires the sender registry from configuration. Channels without
// credentials fall back to the noop sender so unconfigured deployments still
// resolve reminders instead of erroring. Only presence is logged, never values.
func Build(cfg config.Config, log zerolog.Logger) *Registry {
	reg := NewRegistry(NewNoop())

	if cfg.EmailConfigured() {
		reg.Register(models.ChannelEmail, NewSMTP(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			StartTLS: cfg.SMTPStartTLS,
			Timeout:  cfg.SendTimeout,
		}))
		log.Info().Str("channel", models.ChannelEmail).Msg("smtp sender configured")
	} else {
		log.Info().Str("channel", models.ChannelEmail).Msg("no smtp configuration, using noop sender")
	}

	if cfg.SlackConfigured() {
		reg.Register(models.ChannelSlack, NewWebhook(cfg.SlackWebhookURL, cfg.SendTimeout))
		log.Info().Str("channel", models.ChannelSlack).Msg("webhook sender configured")
	}

	return reg
}
