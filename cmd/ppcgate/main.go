package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel    string
	profilePath string

	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "ppcgate",
	Short: "Front page rewriting proxy for the clinic WordPress site",
	Long: `ppcgate sits in front of the WordPress site and rewrites the front page:
it injects the landing page style rules into <head>, the booking widget
controller at the end of <body>, and marks campaign traffic on the body.

Every other response is proxied unchanged.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(logLevel)
	},
}

// cliEnv holds the environment defaults of the persistent flags.
type cliEnv struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ProfilePath string `env:"PPCGATE_PROFILE"`
}

func parseCLIEnv() (cliEnv, error) {
	e, err := env.ParseAs[cliEnv]()
	if err != nil {
		return cliEnv{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

func init() {
	defaults, err := parseCLIEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error); env LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", defaults.ProfilePath, "site profile YAML, built-in defaults when empty; env PPCGATE_PROFILE")

	rootCmd.AddCommand(serveCmd, auditCmd, verifyCmd)
}

func setupLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger.SetOutput(os.Stdout)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05.000000"})
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
