package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSessionCommand groups stored portal session commands.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the stored portal session",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the stored session so the next run logs in afresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := rootOpts.runtime(cmd)
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			if err := rt.SessionView.Forget(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "clear session", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session cleared for %s\n", rt.Config.Run.ExecutionIdentity)
			return nil
		},
	})
	return cmd
}
