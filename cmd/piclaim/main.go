// Command piclaim runs the claim engine from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/donsmila-fx/piclaim"
	"github.com/donsmila-fx/piclaim/keys"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "piclaim",
		Short:         "Claim time-locked Pi balances the instant they unlock",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newRunCommand(&verbose))
	cmd.AddCommand(newDeriveCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newRunCommand(verbose *bool) *cobra.Command {
	var (
		mode       string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the claim engine until interrupted",
		Long: `Run the claim engine.

In burst mode the engine waits until the configured daily unlock time and
fires concurrent claim+payment batches. In poll mode it re-checks
eligibility on an interval. Both run until interrupted. In send mode it
makes a single direct payment from the spendable balance and exits.

Configuration comes from PI_* environment variables, optionally layered
over a YAML file given with --config.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch piclaim.Mode(mode) {
			case piclaim.ModeBurst, piclaim.ModePoll, piclaim.ModeSend:
			default:
				return fmt.Errorf("invalid --mode %q: must be burst, poll, or send", mode)
			}

			level := slog.LevelInfo
			if *verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			cfg, err := piclaim.LoadConfig(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bot, err := piclaim.New(ctx, cfg, piclaim.WithLogger(logger))
			if err != nil {
				return err
			}

			if err := bot.Run(ctx, piclaim.Mode(mode)); err != nil {
				return err
			}
			// Interrupted runs exit cleanly; in-flight submissions were
			// already handed to the network.
			if errors.Is(ctx.Err(), context.Canceled) {
				logger.Info("interrupted, shutting down")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(piclaim.ModeBurst), "run mode (burst|poll|send)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}

func newDeriveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "derive",
		Short: "Print the public address for the configured mnemonic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mnemonic := os.Getenv("PI_MNEMONIC")
			if mnemonic == "" {
				return errors.New("PI_MNEMONIC is not set")
			}
			kp, err := keys.Derive(mnemonic)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), kp.Address())
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the piclaim version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "piclaim", version)
		},
	}
}
