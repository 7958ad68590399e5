package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		TLS     struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Simulator struct {
		// Reply latency bounds in milliseconds. Defaults: 2000..3000.
		MinReplyDelayMs int `yaml:"min_reply_delay_ms"`
		MaxReplyDelayMs int `yaml:"max_reply_delay_ms"`
		// Greeting template; "{name}" is replaced with the counterparty
		// display name when the caller supplies one.
		Greeting string `yaml:"greeting"`
	} `yaml:"simulator"`
	Security struct {
		CORS struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		IPWhitelist []string `yaml:"ip_whitelist"`
		APIKeys     struct {
			Backend  []string `yaml:"backend"`
			Frontend []string `yaml:"frontend"`
			Admin    []string `yaml:"admin"`
		} `yaml:"api_keys"`
	} `yaml:"security"`
	Retention struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
		// Period after which an idle thread is swept, e.g. "720h".
		Period string `yaml:"period"`
	} `yaml:"retention"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`
	Validation struct {
		MaxBodyLen     int `yaml:"max_body_len"`
		MaxAttachments int `yaml:"max_attachments"`
	} `yaml:"validation"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// MinReplyDelay returns the lower reply latency bound as a duration.
func (c *Config) MinReplyDelay() time.Duration {
	if c.Simulator.MinReplyDelayMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Simulator.MinReplyDelayMs) * time.Millisecond
}

// MaxReplyDelay returns the upper reply latency bound as a duration. It
// is never below MinReplyDelay.
func (c *Config) MaxReplyDelay() time.Duration {
	mx := 3 * time.Second
	if c.Simulator.MaxReplyDelayMs > 0 {
		mx = time.Duration(c.Simulator.MaxReplyDelayMs) * time.Millisecond
	}
	if mn := c.MinReplyDelay(); mx < mn {
		return mn
	}
	return mx
}

// RetentionPeriod parses the retention period, defaulting to 30 days.
func (c *Config) RetentionPeriod() (time.Duration, error) {
	if strings.TrimSpace(c.Retention.Period) == "" {
		return 30 * 24 * time.Hour, nil
	}
	return time.ParseDuration(c.Retention.Period)
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns
// their values along with a map indicating which flags were explicitly
// set.
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto the provided cfg
// and reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("CHATLEDGER_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("CHATLEDGER_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("CHATLEDGER_MIN_REPLY_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Simulator.MinReplyDelayMs = n
		}
	}
	if v := os.Getenv("CHATLEDGER_MAX_REPLY_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Simulator.MaxReplyDelayMs = n
		}
	}
	if v := os.Getenv("CHATLEDGER_CORS_ORIGINS"); v != "" {
		envUsed = true
		cfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("CHATLEDGER_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("CHATLEDGER_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("CHATLEDGER_IP_WHITELIST"); v != "" {
		envUsed = true
		cfg.Security.IPWhitelist = parseList(v)
	}
	if v := os.Getenv("CHATLEDGER_API_BACKEND_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Backend = parseList(v)
	}
	if v := os.Getenv("CHATLEDGER_API_FRONTEND_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Frontend = parseList(v)
	}
	if v := os.Getenv("CHATLEDGER_API_ADMIN_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Admin = parseList(v)
	}
	if c := os.Getenv("CHATLEDGER_TLS_CERT"); c != "" {
		envUsed = true
		cfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("CHATLEDGER_TLS_KEY"); k != "" {
		envUsed = true
		cfg.Server.TLS.KeyFile = k
	}
	if v := os.Getenv("CHATLEDGER_RETENTION_CRON"); v != "" {
		envUsed = true
		cfg.Retention.Cron = v
		cfg.Retention.Enabled = true
	}
	return envUsed
}

// LoadEffective loads config from the given path and applies environment
// overrides. A missing file yields an empty config rather than an error;
// flags and env still apply.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the environment variable CHATLEDGER_CONFIG when the flag was
// not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHATLEDGER_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
