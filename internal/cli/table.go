package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/routelab/iprouted/internal/domain"
)

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Inspect the routing table",
	}
	registerClientFlags(cmd)

	cmd.AddCommand(newTableGetCmd())
	cmd.AddCommand(newTableNetworksCmd())
	cmd.AddCommand(newTableWatchCmd())
	return cmd
}

func newTableGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the routing table grouped by host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialGateway(cmd.Context(), "observer")
			if err != nil {
				return err
			}
			defer c.Close()

			table, err := c.RoutingTable(cmd.Context())
			if err != nil {
				return err
			}
			return printTable(table)
		},
	}
}

func newTableNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List every claimed network, without host grouping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialGateway(cmd.Context(), "observer")
			if err != nil {
				return err
			}
			defer c.Close()

			networks, err := c.AllNetworks(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range networks {
				fmt.Printf("%s via %s (%d routes)\n", n.Network, n.Gateway, len(n.Routes))
			}
			return nil
		},
	}
}

func newTableWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the routing table on every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialGateway(cmd.Context(), "observer")
			if err != nil {
				return err
			}
			defer c.Close()

			// Print the current table first, then every broadcast update.
			table, err := c.RoutingTable(cmd.Context())
			if err != nil {
				return err
			}
			if err := printTable(table); err != nil {
				return err
			}

			updates := c.Watch()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case table, ok := <-updates:
					if !ok {
						return fmt.Errorf("gateway connection closed")
					}
					fmt.Println("---")
					if err := printTable(table); err != nil {
						return err
					}
				}
			}
		},
	}
}

func printTable(table domain.RoutingTable) error {
	if len(table) == 0 {
		fmt.Println("(empty table)")
		return nil
	}
	data, err := yaml.Marshal(table)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
