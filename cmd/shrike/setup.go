package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/umbra-intel/shrike/client"
	"github.com/umbra-intel/shrike/config"
	"github.com/umbra-intel/shrike/osint"
	"github.com/umbra-intel/shrike/search"
	"github.com/umbra-intel/shrike/store"
	"github.com/umbra-intel/shrike/tool"
)

// runtime bundles the explicitly constructed collaborators a command needs.
// Commands build one, use it, and close it; nothing here is process-global.
type runtime struct {
	cfg    *config.Config
	repo   store.Repository
	client *client.ToolClient
	cache  *store.ResultCache
}

// buildRuntime wires the tool client from flags and configuration: the
// investigation store, the Tor search client, the six built-in tools, and
// the configured external providers. The client is not yet initialized.
func buildRuntime(cmd *cobra.Command) (*runtime, error) {
	configPath, _ := cmd.Flags().GetString("config")
	torProxy, _ := cmd.Flags().GetString("tor-proxy")
	dbPath, _ := cmd.Flags().GetString("db")
	postgresDSN, _ := cmd.Flags().GetString("postgres")
	redisAddr, _ := cmd.Flags().GetString("redis")

	cfg := config.Load(configPath)

	var repo store.Repository
	var err error
	if postgresDSN != "" {
		repo, err = store.OpenPostgres(postgresDSN)
	} else {
		repo, err = store.OpenSQLite(dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("opening investigation store: %w", err)
	}

	searcher := search.NewClient(search.Config{
		TorProxy: torProxy,
		Timeout:  cfg.TimeoutDuration(),
	})

	var cache *store.ResultCache
	if redisAddr != "" {
		cache = store.NewResultCache(redisAddr, 15*time.Minute)
	}

	builtins := osint.Tools(osint.Deps{
		Search: searcher,
		Fetch:  searcher,
		Repo:   repo,
	})

	tc := client.New(tool.NewRegistry(), providerList(cfg), client.Options{
		Builtins:   builtins,
		Timeout:    cfg.TimeoutDuration(),
		MaxRetries: cfg.MaxRetries,
		Cache:      cache,
	})

	return &runtime{cfg: cfg, repo: repo, client: tc, cache: cache}, nil
}

// initialize registers the built-ins and connects providers. When the
// client side is disabled the provider list is empty and only built-ins
// register.
func (r *runtime) initialize(ctx context.Context) error {
	return r.client.Initialize(ctx)
}

func (r *runtime) close() {
	_ = r.client.Close()
	_ = r.repo.Close()
	if r.cache != nil {
		_ = r.cache.Close()
	}
}

// providerList flattens the configured servers map into deterministic order.
func providerList(cfg *config.Config) []client.Provider {
	if !cfg.Enabled || !cfg.ClientEnabled {
		return nil
	}
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	providers := make([]client.Provider, 0, len(names))
	for _, name := range names {
		providers = append(providers, client.Provider{Name: name, URL: cfg.Servers[name]})
	}
	return providers
}
