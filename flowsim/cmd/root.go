// Package cmd provides the command-line interface of flowsim.
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// Version is set at build time.
var Version = "dev"

type globalOptions struct {
	logLevel string
	envFile  string
}

// NewRootCommand creates the flowsim command with all its subcommands.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "flowsim",
		Short: "flowsim runs network scenarios and reports per-flow statistics.",
		Long: `flowsim runs network scenarios described in YAML files on a ` +
			`discrete event simulator and reports per-flow delay, jitter, ` +
			`throughput and loss.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Log level (panic, fatal, error, warn, info, debug, trace). "+
			"Defaults to FLOWSIM_LOG_LEVEL or info.")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "",
		"File to read FLOWSIM_* defaults from. Defaults to .env if present.")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newValidateCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

func (o *globalOptions) envFiles() []string {
	if o.envFile == "" {
		return nil
	}

	return []string{o.envFile}
}

func (o *globalOptions) newLogger(cmd *cobra.Command, envLevel logrus.Level) (*logrus.Logger, error) {
	level := envLevel

	if o.logLevel != "" {
		l, err := logrus.ParseLevel(o.logLevel)
		if err != nil {
			return nil, err
		}

		level = l
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)

	return logger, nil
}

// Execute runs the root command and exits. Exiting through atexit lets the
// recorders flush their buffers.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
