// Package wavryconfig holds the small pieces of configuration plumbing
// shared by the host, client, and relay binaries: JSON config file
// loading in the teacher's style (server/config.go's parseJSONConfig)
// and the `WAVRY_*` environment-variable gates original_source's
// wavry-relay and wavry-server main.rs both apply before binding a
// non-loopback address.
package wavryconfig

import (
	"encoding/json"
	"net"
	"os"
	"strings"
)

// Environment variable names gating insecure or non-loopback operation,
// named after original_source's fn env_bool call sites.
const (
	EnvAllowInsecureRelay   = "WAVRY_ALLOW_INSECURE_RELAY"
	EnvRelayAllowPublicBind = "WAVRY_RELAY_ALLOW_PUBLIC_BIND"
	EnvHostAllowPublicBind  = "WAVRY_SERVER_ALLOW_PUBLIC_BIND"
)

// EnvBool reads name from the environment and parses it the same way
// original_source's env_bool does: "1", "true", "yes", "on"
// (case-insensitive, trimmed) are true; anything else, or an unset
// variable, falls back to def.
func EnvBool(name string, def bool) bool {
	value, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// IsLoopback reports whether addr (host:port or a bare IP) resolves to a
// loopback address, used to decide whether a non-loopback bind gate
// applies (spec §6's relay/host "refuse to bind a non-loopback address
// without an explicit opt-in").
func IsLoopback(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if host == "" {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

// LoadJSON decodes a JSON config file into dst, mirroring the teacher's
// parseJSONConfig (server/config.go): CLI flags take precedence over
// whatever a config file sets, so callers apply this before parsing
// flags.
func LoadJSON(path string, dst interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(dst)
}
