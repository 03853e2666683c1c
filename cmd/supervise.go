package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/repo-harvester/internal/config"
)

// newSuperviseCmd creates the 'supervise' subcommand, which keeps a
// command alive by restarting it after a cool-down whenever it exits.
func newSuperviseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supervise [--log path] -- command [args...]",
		Short: "Keep a command running, restarting it after it exits",
		Long: `Starts the command and polls it. When it exits the supervisor waits for
the cool-down and starts it again. With --log the command runs through the
shell with stdout and stderr appended to the log file; a log held by
another run is replaced by a numbered sibling.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSuperviseCommand,
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().String("log", config.DefaultSupervisorLogPath,
		"append the command's output to this file; pass --log '' to inherit streams")
	return cmd
}

func runSuperviseCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	cfg := appInstance.GetConfig()

	sup, err := appInstance.NewSupervisor(args, cfg.Supervisor.LogPath)
	if err != nil {
		return err
	}
	logger.Info("supervising command",
		zap.Strings("args", args),
		zap.String("log_path", cfg.Supervisor.LogPath),
		zap.Duration("cooldown", cfg.Supervisor.Cooldown),
	)

	if err := sup.Run(cmd.Context()); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("supervision interrupted", zap.Int("restarts", sup.Restarts()))
			return nil
		}
		return fmt.Errorf("supervise: %w", err)
	}
	return nil
}
