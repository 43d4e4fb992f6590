// Package config parses the txnfeed-consumer binary's configuration:
// CLI flags and environment variables via jessevdk/go-flags (the same
// struct-tag convention go.gazette.dev/core's own mainboilerplate
// builds on), with an optional JSON merge-patch file applied on top for
// environment-specific overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	flags "github.com/jessevdk/go-flags"
)

// Config is the consumer binary's full configuration surface.
type Config struct {
	Backend struct {
		Kind           string   `long:"kind" env:"KIND" default:"mem" choice:"mem" choice:"sqlite" choice:"etcd" choice:"gazette" description:"backing store implementation"`
		SQLitePath     string   `long:"sqlite-path" env:"SQLITE_PATH" default:"txnfeed.db"`
		EtcdEndpoints  []string `long:"etcd-endpoint" env:"ETCD_ENDPOINTS" env-delim:","`
		EtcdPrefix     string   `long:"etcd-prefix" env:"ETCD_PREFIX" default:"/txnfeed/commits/"`
		GazetteBroker  string   `long:"gazette-broker" env:"GAZETTE_BROKER" default:"localhost:8080"`
		GazetteJournal string   `long:"gazette-journal" env:"GAZETTE_JOURNAL"`
	} `group:"backend" namespace:"backend" env-namespace:"BACKEND"`

	Adapter struct {
		CacheSize    int           `long:"cache-size" env:"CACHE_SIZE" default:"4096" description:"checkpoint cache capacity"`
		PollInterval time.Duration `long:"poll-interval" env:"POLL_INTERVAL" default:"1s" description:"minimum time between re-polls of the same tail checkpoint"`
		MaxPageSize  int           `long:"max-page-size" env:"MAX_PAGE_SIZE" default:"256" description:"maximum transactions per page"`
	} `group:"adapter" namespace:"adapter" env-namespace:"ADAPTER"`

	Admin struct {
		HTTPAddr  string `long:"http-addr" env:"HTTP_ADDR" default:":8090" description:"address for /metrics and /debug/subscriptions"`
		GRPCAddr  string `long:"grpc-addr" env:"GRPC_ADDR" default:":8091" description:"address for the gRPC health service"`
		JWTSecret string `long:"jwt-secret" env:"JWT_SECRET" description:"HMAC secret validating the bearer JWT on admin endpoints"`
	} `group:"admin" namespace:"admin" env-namespace:"ADMIN"`

	ConfigPatch string `long:"config-patch" description:"path to a JSON merge-patch file applied over this config's JSON encoding"`
}

// Parse parses args (typically os.Args[1:]) into a Config, then applies
// ConfigPatch if one was given.
func Parse(args []string) (*Config, error) {
	var cfg Config
	if _, err := flags.NewParser(&cfg, flags.Default).ParseArgs(args); err != nil {
		return nil, err
	}
	if cfg.ConfigPatch != "" {
		if err := cfg.applyPatch(cfg.ConfigPatch); err != nil {
			return nil, fmt.Errorf("applying config patch %s: %w", cfg.ConfigPatch, err)
		}
	}
	return &cfg, nil
}

// applyPatch merges a JSON merge-patch document read from path onto
// the JSON encoding of c, then decodes the result back into c.
func (c *Config) applyPatch(path string) error {
	base, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding base config: %w", err)
	}
	patch, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading patch file: %w", err)
	}
	merged, err := jsonpatch.MergePatch(base, patch)
	if err != nil {
		return fmt.Errorf("merging patch: %w", err)
	}
	return json.Unmarshal(merged, c)
}
