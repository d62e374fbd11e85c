package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/routelab/iprouted/internal/config"
	"github.com/routelab/iprouted/internal/requirer"
)

var (
	gatewayURL string
	authToken  string
	hostName   string
)

// registerClientFlags adds the gateway connection flags shared by the
// client-side commands.
func registerClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "gateway WebSocket URL (default from client.gatewayUrl)")
	cmd.PersistentFlags().StringVar(&authToken, "token", "", "gateway auth token (default from client.token)")
	cmd.PersistentFlags().StringVar(&hostName, "host", "", "host name to act as (default from client.host)")
}

// clientConfig merges the connection flags over the config file defaults.
func clientConfig(mode string) (requirer.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		cfg = config.Defaults()
	}

	rc := requirer.Config{
		GatewayURL: cfg.Client.GatewayURL,
		Token:      cfg.Client.Token,
		Host:       cfg.Client.Host,
		Mode:       mode,
	}
	if gatewayURL != "" {
		rc.GatewayURL = gatewayURL
	}
	if authToken != "" {
		rc.Token = authToken
	}
	if hostName != "" {
		rc.Host = hostName
	}

	if rc.GatewayURL == "" {
		return rc, errors.New("no gateway URL configured; set client.gatewayUrl or pass --gateway")
	}
	if mode == "host" && rc.Host == "" {
		return rc, errors.New("no host name configured; set client.host or pass --host")
	}
	return rc, nil
}

// dialGateway connects to the gateway using the merged client config.
func dialGateway(ctx context.Context, mode string) (*requirer.Client, error) {
	rc, err := clientConfig(mode)
	if err != nil {
		return nil, err
	}
	return requirer.Dial(ctx, rc, log)
}
