package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCloneCmd creates the 'clone' subcommand: one synchronous clone
// whose exit code and combined output are printed as "<rc>: <output>".
func newCloneCmd() *cobra.Command {
	var shell bool
	cmd := &cobra.Command{
		Use:   "clone [--vcs git|hg] [--shell] <url>",
		Short: "Clone one repository and print its exit code and output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cloner, err := appInstance.NewCloner(appInstance.GetConfig().Crawl.VCS)
			if err != nil {
				return err
			}
			out, code, err := cloner.CloneSync(cmd.Context(), args[0], shell)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", code, out)
			if code != 0 {
				return fmt.Errorf("%s clone exited with code %d", cloner.Kind(), code)
			}
			return nil
		},
	}
	cmd.Flags().String("vcs", "", "version control tool: git or hg")
	cmd.Flags().BoolVar(&shell, "shell", false, "run the clone command through the host shell")
	return cmd
}
