package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNetworkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Claim and release networks",
	}
	registerClientFlags(cmd)

	cmd.AddCommand(newNetworkRequestCmd())
	cmd.AddCommand(newNetworkReleaseCmd())
	return cmd
}

func newNetworkRequestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request <address/prefix>",
		Short: "Claim the network an interface address belongs to",
		Long:  "Claims a network for this host. The argument is an interface address like 192.168.250.14/24; the gateway derives the network from it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialGateway(cmd.Context(), "host")
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.RequestNetwork(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Claimed %s (gateway %s)\n", n.Network, n.Gateway)
			return nil
		},
	}
}

func newNetworkReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <network>",
		Short: "Release a claimed network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialGateway(cmd.Context(), "host")
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.ReleaseNetwork(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Released %s\n", args[0])
			return nil
		},
	}
}
