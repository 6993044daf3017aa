// Command bssrv runs the Battleships game server: a single-threaded,
// readiness-driven TCP loop with pairwise matchmaking and reconnect-on-
// login session recovery. Flags mirror main.rs's clap-based CLI.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/miroslavkrysl/bssrv/internal/app"
	"github.com/miroslavkrysl/bssrv/internal/server"
)

var (
	ipFlag             string
	portFlag           uint16
	playersFlag        int
	logFlag            string
	peerTimeoutFlag    time.Duration
	sessionTimeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "bssrv",
	Short:         "Battleships TCP game server",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&ipFlag, "ip", "i", "0.0.0.0", "bind address")
	flags.Uint16VarP(&portFlag, "port", "p", 10000, "bind port")
	flags.IntVarP(&playersFlag, "players", "m", 1024, "max concurrent registered players")
	flags.StringVarP(&logFlag, "log", "l", "off", "log level: off|error|warn|info|debug|trace")
	flags.DurationVar(&peerTimeoutFlag, "peer-timeout", 10*time.Second, "peer inactivity timeout before forced close")
	flags.DurationVar(&sessionTimeoutFlag, "session-timeout", 60*time.Second, "session inactivity timeout before eviction")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level, err := parseLogLevel(logFlag)
	if err != nil {
		return err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()

	ip := net.ParseIP(ipFlag)
	if ip == nil {
		return fmt.Errorf("invalid --ip value: %q", ipFlag)
	}

	cfg := server.Config{
		IP:             ip,
		Port:           portFlag,
		MaxPlayers:     playersFlag,
		PeerTimeout:    peerTimeoutFlag,
		SessionTimeout: sessionTimeoutFlag,
	}

	a := app.New(cfg.MaxPlayers, cfg.SessionTimeout, logger.With().Str("component", "app").Logger())

	srv, err := server.New(cfg, a, logger.With().Str("component", "server").Logger())
	if err != nil {
		return fmt.Errorf("bssrv: %w", err)
	}

	var shutdown atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
		shutdown.Store(true)
	}()

	logger.Info().Str("addr", srv.Addr()).Msg("listening")
	if err := srv.Run(&shutdown); err != nil {
		return fmt.Errorf("bssrv: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}

func parseLogLevel(s string) (zerolog.Level, error) {
	switch s {
	case "off":
		return zerolog.Disabled, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	default:
		return 0, fmt.Errorf("unknown --log level %q", s)
	}
}
