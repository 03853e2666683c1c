package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newInitCmd() *cobra.Command {
	var (
		cursor int64
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init [--cursor N] [--force]",
		Short: "Create the checkpoint file",
		Long: `Writes the starting cursor to the checkpoint file. An existing file is
left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store := appInstance.CheckpointStore()
			if err := store.Init(cursor, force); err != nil {
				return fmt.Errorf("init checkpoint: %w", err)
			}
			appInstance.GetLogger().Info("checkpoint initialized",
				zap.String("path", store.Path()), zap.Int64("cursor", cursor))
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s set to %d\n", store.Path(), cursor)
			return nil
		},
	}
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "starting repository ID")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing checkpoint")
	cmd.Flags().String("checkpoint", "", "cursor file path")
	return cmd
}
