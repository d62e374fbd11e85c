package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Publish routes through claimed networks",
	}
	registerClientFlags(cmd)

	cmd.AddCommand(newRouteAddCmd())
	return cmd
}

func newRouteAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <gateway> <destination>",
		Short: "Publish a route to a destination via a gateway address",
		Long:  "Publishes a route. The gateway address must lie inside one of this host's claimed networks; the route is attached to that network.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialGateway(cmd.Context(), "host")
			if err != nil {
				return err
			}
			defer c.Close()

			r, err := c.RequestRoute(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Published route to %s via %s\n", r.Destination, r.Gateway)
			return nil
		},
	}
}
