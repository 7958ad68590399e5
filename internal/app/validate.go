package app

import (
	"fmt"
	"net"

	"chatledger/pkg/config"
)

// validateConfig rejects startup values that cannot produce a working
// server. Soft misconfigurations (zero rate limits, missing keys) are
// left to their packages' defaults.
func validateConfig(cfg *config.Config, addr, dbPath string) error {
	if addr == "" {
		return fmt.Errorf("listen address is required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if dbPath == "" {
		return fmt.Errorf("database path is required")
	}
	cert := cfg.Server.TLS.CertFile
	key := cfg.Server.TLS.KeyFile
	if (cert == "") != (key == "") {
		return fmt.Errorf("tls requires both cert_file and key_file")
	}
	if cfg.Simulator.MinReplyDelayMs < 0 || cfg.Simulator.MaxReplyDelayMs < 0 {
		return fmt.Errorf("reply delays must not be negative")
	}
	if cfg.Retention.Enabled {
		if _, err := cfg.RetentionPeriod(); err != nil {
			return fmt.Errorf("invalid retention period: %w", err)
		}
	}
	return nil
}
