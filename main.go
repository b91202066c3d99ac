package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	logLevel   = "info"
	configPath = ""
	envFile    = ".env"
)

// Version information, set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}
	return nil
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plura-monitor",
		Short: "plura-monitor samples the PLURA board sensors and publishes the latest readings",
		Long: `plura-monitor samples the battery and fuel cell ADC channels and the SHT41
temperature/humidity sensor on a fixed period, keeps the latest calibrated
reading of every channel and serves them over HTTP, MQTT, InfluxDB or the
console.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", logLevel, "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVarP(&configPath, "config", "c", configPath, "config file path (.json, .yaml)")
	globalFlags.StringVar(&envFile, "env-file", envFile, "dotenv file with PLURA_* overrides, ignored when missing")

	cmd.AddCommand(
		NewRunCommand(),
		NewReadCommand(),
		NewVersionCommand(),
	)
	return cmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", Version, GitCommit)
		},
	}
}
