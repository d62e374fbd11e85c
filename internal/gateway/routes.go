package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/routelab/iprouted/internal/routetable"
)

// safeConfigPrefixes lists config path prefixes that can be read and
// written via RPC. All other paths are denied by default (allowlist).
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.mode",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.allowedOrigins",
	"logging",
	"router",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("table.get", s.rpcTableGet)
	s.Handle("table.flattened", s.rpcTableFlattened)
	s.Handle("network.request", s.rpcNetworkRequest)
	s.Handle("network.release", s.rpcNetworkRelease)
	s.Handle("route.request", s.rpcRouteRequest)
}

// Built-in RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
		Hosts:   len(s.router.Table()),
	})
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "access denied for config path: "+p.Key)
		return
	}

	s.mu.RLock()
	raw := s.configRaw
	s.mu.RUnlock()

	path, err := parseConfigPathForRPC(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	val, ok := getValueAtPathRPC(raw, path)
	if !ok {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "cannot modify config path: "+p.Key)
		return
	}

	path, err := parseConfigPathForRPC(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	setValueAtPathRPC(s.configRaw, path, p.Value)
	s.mu.Unlock()

	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

func (s *Server) rpcTableGet(rc *RequestContext) {
	rc.Respond(map[string]any{"table": s.router.Table()})
}

func (s *Server) rpcTableFlattened(rc *RequestContext) {
	rc.Respond(map[string]any{"networks": s.router.Flattened()})
}

type networkRequestParams struct {
	Interface string `json:"interface"` // gateway/mask, ex "192.168.250.1/24"
}

func (s *Server) rpcNetworkRequest(rc *RequestContext) {
	if !rc.Client.IsHost() {
		rc.RespondError("forbidden", "only host-mode clients can claim networks")
		return
	}

	var p networkRequestParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Interface == "" {
		rc.RespondError("invalid_params", "interface is required")
		return
	}

	n, err := s.router.RequestNetwork(context.Background(), rc.Client.Info.ID, p.Interface)
	if err != nil {
		rc.RespondError(routerErrorCode(err), err.Error())
		return
	}
	rc.Respond(map[string]any{"network": n})
}

type networkReleaseParams struct {
	Network string `json:"network"` // CIDR, ex "192.168.250.0/24"
}

func (s *Server) rpcNetworkRelease(rc *RequestContext) {
	if !rc.Client.IsHost() {
		rc.RespondError("forbidden", "only host-mode clients can release networks")
		return
	}

	var p networkReleaseParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Network == "" {
		rc.RespondError("invalid_params", "network is required")
		return
	}

	if err := s.router.ReleaseNetwork(context.Background(), rc.Client.Info.ID, p.Network); err != nil {
		rc.RespondError(routerErrorCode(err), err.Error())
		return
	}
	rc.Respond(map[string]any{"released": p.Network})
}

type routeRequestParams struct {
	Gateway     string `json:"gateway"`     // address inside one of the host's networks
	Destination string `json:"destination"` // CIDR reachable via that gateway
}

func (s *Server) rpcRouteRequest(rc *RequestContext) {
	if !rc.Client.IsHost() {
		rc.RespondError("forbidden", "only host-mode clients can publish routes")
		return
	}

	var p routeRequestParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Gateway == "" || p.Destination == "" {
		rc.RespondError("invalid_params", "gateway and destination are required")
		return
	}

	r, err := s.router.RequestRoute(context.Background(), rc.Client.Info.ID, p.Gateway, p.Destination)
	if err != nil {
		rc.RespondError(routerErrorCode(err), err.Error())
		return
	}
	rc.Respond(map[string]any{"route": r})
}

// routerErrorCode maps routetable errors to wire error codes.
func routerErrorCode(err error) string {
	switch {
	case errors.Is(err, routetable.ErrHostUnknown):
		return "unknown_host"
	case errors.Is(err, routetable.ErrNetworkTaken):
		return "network_taken"
	case errors.Is(err, routetable.ErrNetworkNotAllowed):
		return "network_not_allowed"
	case errors.Is(err, routetable.ErrTooManyNetworks):
		return "quota_exceeded"
	case errors.Is(err, routetable.ErrGatewayNotInNetwork):
		return "gateway_not_in_network"
	case errors.Is(err, routetable.ErrNetworkNotFound):
		return "not_found"
	default:
		return "invalid_params"
	}
}

// Helpers that mirror config.ParseConfigPath / GetValueAtPath for the RPC
// surface; they operate on raw maps only.

func parseConfigPathForRPC(raw string) ([]string, error) {
	if raw == "" {
		return nil, ErrEmptyConfigPath
	}
	var parts []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '.' {
			if i == start {
				return nil, ErrEmptyConfigPath
			}
			parts = append(parts, raw[start:i])
			start = i + 1
		}
	}
	return parts, nil
}

func getValueAtPathRPC(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setValueAtPathRPC(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key]
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		m, ok := next.(map[string]any)
		if !ok {
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	current[path[len(path)-1]] = value
}
