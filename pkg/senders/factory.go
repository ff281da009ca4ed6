package senders

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/engine"
)

// New creates the sender selected by cfg.Type.
func New(cfg config.SenderConfig, logger zerolog.Logger) (engine.Sender, error) {
	switch cfg.Type {
	case config.SenderNoop, "":
		return NewNoop(logger), nil
	case config.SenderWebhook:
		webhook, err := NewWebhook(cfg.URL, cfg.Timeout, logger)
		if err != nil {
			return nil, err
		}
		return webhook, nil
	case config.SenderReject:
		return NewReject(logger), nil
	default:
		return nil, engine.NewConfigurationError(fmt.Sprintf("unknown sender type %q", cfg.Type), nil).
			WithCode(engine.ErrCodeInvalidSender)
	}
}
