package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/routelab/iprouted/internal/config"
	"github.com/routelab/iprouted/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show iprouted status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("iprouted %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			// Load config
			cfg, err := config.Load(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Config:  not found (using defaults)")
				} else {
					fmt.Printf("Config:  error loading: %v\n", err)
				}
				return nil
			}

			// Gateway config
			port := cfg.Gateway.Port
			if port == 0 {
				port = 18790
			}
			bind := cfg.Gateway.Bind
			if bind == "" {
				bind = "loopback"
			}
			fmt.Printf("Gateway: port=%d bind=%s auth=%s\n",
				port, bind, cfg.Gateway.Auth.Mode)

			// Router policy
			quota := "unlimited"
			if cfg.Router.MaxNetworksPerHost > 0 {
				quota = fmt.Sprintf("%d", cfg.Router.MaxNetworksPerHost)
			}
			pools := "any"
			if len(cfg.Router.AllowedPools) > 0 {
				pools = strings.Join(cfg.Router.AllowedPools, ",")
			}
			fmt.Printf("Router:  networksPerHost=%s pools=%s\n", quota, pools)

			// Store backend
			backend := cfg.Store.Backend
			if backend == "" {
				backend = "sqlite"
			}
			fmt.Printf("Store:   backend=%s\n", backend)

			// Client defaults
			if cfg.Client.GatewayURL != "" {
				host := cfg.Client.Host
				if host == "" {
					host = "(observer)"
				}
				fmt.Printf("Client:  gateway=%s host=%s\n", cfg.Client.GatewayURL, host)
			}

			// IRC announcer
			if cfg.Notify.IRC != nil {
				irc := cfg.Notify.IRC
				fmt.Printf("IRC:     server=%s nick=%s channels=%s tls=%v\n",
					irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
			} else {
				fmt.Println("IRC:     (not configured)")
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
