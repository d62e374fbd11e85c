package cli

import (
	"context"
	"fmt"
	"net/netip"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/routelab/iprouted/internal/config"
	"github.com/routelab/iprouted/internal/gateway"
	"github.com/routelab/iprouted/internal/hooks"
	"github.com/routelab/iprouted/internal/notify"
	"github.com/routelab/iprouted/internal/routetable"
	"github.com/routelab/iprouted/internal/store"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the iprouted gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// Load raw config for RPC access
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			hookMgr := hooks.NewManager(log)

			// Routing-table store (SQLite or in-memory)
			var routes store.RouteStore
			if cfg.Store.Backend == "memory" {
				routes = store.NewMemoryRouteStore()
				log.Info().Msg("using in-memory route store")
			} else {
				dbPath := cfg.Store.Path
				if dbPath == "" {
					dbPath = filepath.Join(paths.Data, "iprouted.db")
				}
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				routes = store.NewSQLiteRouteStore(db)
				log.Info().Str("path", dbPath).Msg("using SQLite route store")
			}

			policy, err := routerPolicy(cfg.Router)
			if err != nil {
				return err
			}

			router, err := routetable.NewManager(routes, hookMgr, log, policy)
			if err != nil {
				return fmt.Errorf("loading routing table: %w", err)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// IRC announcer, if configured
			if cfg.Notify.IRC != nil {
				announcer := notify.NewAnnouncer(*cfg.Notify.IRC, log)
				announcer.Register(hookMgr)
				go func() {
					if err := announcer.Start(ctx); err != nil && ctx.Err() == nil {
						log.Warn().Err(err).Msg("IRC announcer stopped")
					}
				}()
				defer announcer.Stop(context.Background())
			}

			srv := gateway.New(cfg, router, log,
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(hookMgr),
			)

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom, tailnet)")

	return cmd
}

// routerPolicy builds the table policy from config. Validate has already
// checked the pool CIDRs, so parse errors here are config file races.
func routerPolicy(rc config.RouterConfig) (routetable.Policy, error) {
	policy := routetable.Policy{MaxNetworksPerHost: rc.MaxNetworksPerHost}
	for _, pool := range rc.AllowedPools {
		pfx, err := netip.ParsePrefix(pool)
		if err != nil {
			return routetable.Policy{}, fmt.Errorf("allowed pool %q: %w", pool, err)
		}
		policy.AllowedPools = append(policy.AllowedPools, pfx.Masked())
	}
	return policy, nil
}
