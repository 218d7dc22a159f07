package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/mentionbot/internal/bot"
	"github.com/mentionbot/internal/chat"
	"github.com/mentionbot/internal/config"
	"github.com/mentionbot/internal/github"
	"github.com/mentionbot/internal/refs"
	"github.com/mentionbot/internal/resolver"
	"github.com/mentionbot/internal/responder"
	"github.com/mentionbot/internal/ttrcache"
	"github.com/mentionbot/internal/webhookrelay"
	"github.com/mentionbot/internal/xkcd"
)

// ServeCommand returns the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the mention bot and the webhook relay",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	setupLogging(c.Bool("debug"))

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	b, err := buildBot(cfg)
	if err != nil {
		return err
	}
	// The chat-platform adapter delivers inbound events to the bot's
	// Handle* methods; until one is connected the bot only serves the
	// webhook relay.
	log.Info().Int("tracked_responses", b.Controller().Len()).Msg("mention pipeline ready")

	relay := webhookrelay.NewServer(webhookrelay.Options{
		Port:     cfg.Webhooks.Port,
		Secret:   cfg.Webhooks.Secret,
		Channels: cfg.Webhooks.Channels,
	}, newMessenger(cfg))

	log.Info().
		Int("port", cfg.Webhooks.Port).
		Str("default_repo", cfg.GitHub.DefaultOwner+"/"+cfg.GitHub.DefaultRepo).
		Msg("starting mention bot")
	return relay.Start()
}

// buildBot assembles the full mention pipeline from configuration.
func buildBot(cfg *config.Config) (*bot.Bot, error) {
	gh, err := github.NewClient(github.Options{
		Token:         cfg.GitHub.Token,
		AppID:         cfg.GitHub.AppID,
		AppPrivateKey: cfg.GitHub.AppPrivateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build github client: %w", err)
	}

	parser := refs.NewParser(cfg.GitHub.DefaultOwner, cfg.GitHub.DefaultRepo, cfg.GitHub.Prefixes)
	cache := ttrcache.New[any](cfg.Cache.RefreshWindow, cfg.Cache.MaxEntries)
	res := resolver.New(cache, gh, xkcd.NewClient(xkcd.Options{}))

	windows := bot.Windows{
		Entity: responder.Windows{
			Tracking: cfg.Responses.TrackingWindow,
			Action:   cfg.Responses.DeleteActionWindow,
		},
		Comic: responder.Windows{
			Tracking: cfg.Responses.ComicTracking,
			Action:   cfg.Responses.ComicActionWindow,
		},
	}
	return bot.New(parser, res, newMessenger(cfg), windows), nil
}

func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// newMessenger returns the outbound chat adapter. The platform SDK
// binding lives outside this repository; the default adapter logs what
// it would post so the pipeline stays observable end to end.
func newMessenger(cfg *config.Config) chat.Messenger {
	return logMessenger{}
}

type logMessenger struct{}

func (logMessenger) Post(_ context.Context, channel, content string, _ chat.PostOptions) (string, error) {
	log.Info().Str("channel", channel).Str("content", content).Msg("post message")
	return "", nil
}

func (logMessenger) Edit(_ context.Context, ref chat.MessageRef, content string) error {
	log.Info().Str("message", ref.ID).Str("content", content).Msg("edit message")
	return nil
}

func (logMessenger) Delete(_ context.Context, ref chat.MessageRef) error {
	log.Info().Str("message", ref.ID).Msg("delete message")
	return nil
}

func (logMessenger) RemoveActions(_ context.Context, ref chat.MessageRef) error {
	log.Debug().Str("message", ref.ID).Msg("remove message actions")
	return nil
}

func (logMessenger) SuppressEmbeds(_ context.Context, ref chat.MessageRef) error {
	log.Debug().Str("message", ref.ID).Msg("suppress message embeds")
	return nil
}
