// Command adminconsole attaches an operator terminal to one user's support
// channel.
//
//	adminconsole [sessionID]
//
// Without an argument the session ID is read from standard input. Type exit
// or send end-of-input to leave.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/mobileauth-chat/internal/bootstrap"
	"github.com/tbourn/mobileauth-chat/internal/config"
	"github.com/tbourn/mobileauth-chat/internal/console"
	"github.com/tbourn/mobileauth-chat/internal/services"
	"github.com/tbourn/mobileauth-chat/internal/sysutil"
)

var (
	pollInterval time.Duration
	errorBackoff time.Duration
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "adminconsole [sessionID]",
	Short: "Chat with a user as the support operator",
	Long: `Attach to the support channel of the user behind a session ID.

The session ID may be an OTP session or an external-identity session. The
console prints the transcript, then tails new user and bot messages while
sending every typed line as an admin message.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConsole,
}

func init() {
	rootCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "tail interval (default POLL_INTERVAL)")
	rootCmd.Flags().DurationVar(&errorBackoff, "error-backoff", 0, "pause after a failed poll (default POLL_ERROR_BACKOFF)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "diagnostic log level written to stderr")
}

func runConsole(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	sysutil.SetupLogger(cmd.ErrOrStderr(), logLevel, true, "adminconsole")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if pollInterval <= 0 {
		pollInterval = cfg.Chat.PollInterval
	}
	if errorBackoff <= 0 {
		errorBackoff = cfg.Chat.PollErrorBackoff
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := console.NewPrinter(cmd.OutOrStdout(), cfg.Image.URLPrefix, time.Local)
	store, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		out.Systemf("Error connecting to the store: %v", err)
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("closing store")
		}
	}()
	out.Systemf("Successfully connected to the %s store.", cfg.Store.Driver)

	svc := services.New(store, nil, nil, services.Options{
		ExternalSessionPrefix: cfg.Chat.ExternalSessionPrefix,
		MaxMessageRunes:       cfg.Chat.MaxMessageRunes,
	})

	var sessionID string
	if len(args) == 1 {
		sessionID = args[0]
	}
	c := &console.Console{
		Chat:         svc.Chat,
		Out:          out,
		In:           cmd.InOrStdin(),
		PollInterval: pollInterval,
		ErrorBackoff: errorBackoff,
	}
	return c.Run(ctx, sessionID)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, services.ErrUserNotFound) {
			log.Error().Err(err).Msg("adminconsole failed")
		}
		os.Exit(1)
	}
}
