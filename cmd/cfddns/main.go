package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Travis-Britz/cfddns"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	logger := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(logger).ExecuteContext(ctx); err != nil {
		stop()
		logger.Fatal(err)
	}
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	} else {
		logger.Formatter = &logrus.JSONFormatter{}
	}
	return logger
}

func newRootCommand(logger *logrus.Logger) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "cfddns",
		Short: "Keep Cloudflare A records pointed at this host's public IP",
		Long: `cfddns looks up the record ID of every domain in DOMAINS (unless RECORDS lists them),
then republishes the public IPv4 address of this host to those records every INTERVAL seconds.

Configuration is read from the environment and from a dotenv file (.env by default).`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile, logger)
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Flags().StringVarP(&configFile, "file", "f", "", "load configuration from this dotenv file instead of "+cfddns.DefaultConfigFile)
	return cmd
}

func run(ctx context.Context, configFile string, logger *logrus.Logger) error {
	cfg, err := cfddns.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("error loading configuration: LOG_LEVEL: %w", err)
	}
	logger.SetLevel(level)
	logger.WithFields(cfg.Fields()).Info("configuration loaded")

	r, err := cfddns.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	return r.Run(ctx)
}
