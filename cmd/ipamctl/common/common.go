package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vfabric/privateip/manager/allocator/registry"
	"github.com/vfabric/privateip/manager/state"
	"github.com/vfabric/privateip/manager/state/boltstore"
	"github.com/vfabric/privateip/manager/state/redisstore"
)

const (
	// BackendBolt keeps the state in a local database file.
	BackendBolt = "bolt"
	// BackendRedis keeps the state on a Redis server.
	BackendRedis = "redis"
)

// DefaultStateDir returns $IPAM_STATE_DIR, or ./ipam-state.
func DefaultStateDir() string {
	if dir := os.Getenv("IPAM_STATE_DIR"); dir != "" {
		return dir
	}
	return "./ipam-state"
}

// Open creates a registry over the store selected by the CLI options. The
// returned function releases the registry and its store.
func Open(cmd *cobra.Command) (*registry.Registry, func(), error) {
	flags := cmd.Flags()

	backend, err := flags.GetString("backend")
	if err != nil {
		return nil, nil, err
	}
	lockTimeout, err := flags.GetDuration("lock-timeout")
	if err != nil {
		return nil, nil, err
	}

	var st state.Store
	switch backend {
	case BackendBolt:
		dir, err := flags.GetString("state-dir")
		if err != nil {
			return nil, nil, err
		}
		st, err = boltstore.Open(filepath.Join(dir, boltstore.DefaultDBName))
		if err != nil {
			return nil, nil, err
		}
	case BackendRedis:
		addr, err := flags.GetString("redis-addr")
		if err != nil {
			return nil, nil, err
		}
		prefix, err := flags.GetString("redis-prefix")
		if err != nil {
			return nil, nil, err
		}
		st, err = redisstore.Open(Context(cmd), addr, prefix)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("unknown backend %q, expected %q or %q", backend, BackendBolt, BackendRedis)
	}

	cfg := registry.DefaultConfig()
	cfg.LockTimeout = lockTimeout
	r := registry.New(st, cfg)
	return r, func() {
		r.Close()
		st.Close()
	}, nil
}

// Context returns a request context based on CLI arguments.
func Context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
