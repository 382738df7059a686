package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage locally remembered sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List remembered sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conns, err := wire.Connections.ListConnections()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tSTATUS\tPROVIDERS\tCREATED\tRELAY")
			for _, c := range conns {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", c.SessionID, c.Status, c.ProviderCount,
					c.CreatedAt.Local().Format("2006-01-02 15:04"), c.RelayURL)
			}
			return tw.Flush()
		},
	}, &cobra.Command{
		Use:   "clear",
		Short: "Forget every remembered session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Connections.DeleteAllConnections(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared")
			return nil
		},
	})
	return cmd
}
