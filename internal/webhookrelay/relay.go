// Package webhookrelay receives GitHub webhook deliveries over HTTP
// and forwards a short notice to the configured chat channel for the
// event type. It verifies delivery signatures but contains no mention
// logic; it is glue between GitHub and the Messenger.
package webhookrelay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mentionbot/internal/chat"
)

// Options configures the relay server.
type Options struct {
	Port   int
	Secret string
	// Channels maps a GitHub event type ("issues", "pull_request",
	// "discussion", ...) to the channel its notices go to.
	Channels map[string]string
}

// Server is the webhook relay HTTP server.
type Server struct {
	echo      *echo.Echo
	port      int
	secret    []byte
	channels  map[string]string
	messenger chat.Messenger
}

// NewServer creates a relay server posting through messenger.
func NewServer(opts Options, messenger chat.Messenger) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		port:      opts.Port,
		secret:    []byte(opts.Secret),
		channels:  opts.Channels,
		messenger: messenger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	s.echo.POST("/webhook", s.handleDelivery)
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start runs the server until an interrupt signal, then shuts down
// gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("webhook relay server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// delivery is the slice of a webhook payload the relay cares about.
type delivery struct {
	Action string `json:"action"`
	Issue  *struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
	} `json:"issue"`
	PullRequest *struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
	} `json:"pull_request"`
	Discussion *struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
	} `json:"discussion"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

func (s *Server) handleDelivery(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	if len(s.secret) > 0 {
		signature := c.Request().Header.Get("X-Hub-Signature-256")
		if !verifySignature(s.secret, body, signature) {
			return echo.NewHTTPError(http.StatusUnauthorized, "bad signature")
		}
	}

	eventType := c.Request().Header.Get("X-GitHub-Event")
	channel, ok := s.channels[eventType]
	if !ok {
		// Unmapped events are acknowledged and dropped.
		return c.NoContent(http.StatusNoContent)
	}

	var d delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	notice := formatNotice(eventType, &d)
	if notice == "" {
		return c.NoContent(http.StatusNoContent)
	}

	if _, err := s.messenger.Post(c.Request().Context(), channel, notice, chat.PostOptions{SuppressEmbeds: true}); err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to relay webhook notice")
		return echo.NewHTTPError(http.StatusBadGateway, "relay failed")
	}
	return c.NoContent(http.StatusOK)
}

func formatNotice(eventType string, d *delivery) string {
	var number int
	var title, htmlURL, noun string
	switch {
	case d.Issue != nil:
		number, title, htmlURL, noun = d.Issue.Number, d.Issue.Title, d.Issue.HTMLURL, "Issue"
	case d.PullRequest != nil:
		number, title, htmlURL, noun = d.PullRequest.Number, d.PullRequest.Title, d.PullRequest.HTMLURL, "Pull request"
	case d.Discussion != nil:
		number, title, htmlURL, noun = d.Discussion.Number, d.Discussion.Title, d.Discussion.HTMLURL, "Discussion"
	default:
		return ""
	}
	return fmt.Sprintf("%s [#%d](<%s>) %s by %s in `%s`: %s",
		noun, number, htmlURL, d.Action, d.Sender.Login, d.Repository.FullName, title)
}

// verifySignature checks GitHub's sha256= HMAC delivery signature.
func verifySignature(secret, body []byte, signature string) bool {
	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature[len(prefix):]))
}
