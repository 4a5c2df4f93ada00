package cmd

import (
	"context"
	"fmt"

	"github.com/DachengChen/paiconsole/api"
	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/archive"
	"github.com/DachengChen/paiconsole/config"
	"github.com/DachengChen/paiconsole/ssh"
)

// env is everything a command needs to talk to the backend.
type env struct {
	cfg      *config.AppConfig
	sessions *config.SessionStore
	client   *api.Client
	archive  archive.Store // nil unless configured and requested
	tunnel   *ssh.Tunnel   // nil unless Tunnel.Enabled
}

// openEnv loads config and session, starts the SSH tunnel when
// enabled, and builds the API client. withArchive also opens the turn
// archive; a failing archive is logged and skipped.
func openEnv(ctx context.Context, withArchive bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	sessions, err := config.NewSessionStore()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	e := &env{cfg: cfg, sessions: sessions}

	apiCfg := cfg.API
	if cfg.Tunnel.Enabled {
		remote, err := ssh.RemoteAddr(apiCfg.BaseURL)
		if err != nil {
			return nil, err
		}
		origin, err := ssh.OriginHost(apiCfg.BaseURL)
		if err != nil {
			return nil, err
		}
		t, err := ssh.NewTunnel(cfg.Tunnel, remote)
		if err != nil {
			return nil, err
		}
		local, err := ssh.ForwardURL(ctx, t, apiCfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("ssh tunnel: %w", err)
		}
		applog.Info("API %s tunneled via %s as %s", apiCfg.BaseURL, cfg.Tunnel.Addr(), local)
		e.tunnel = t
		apiCfg.BaseURL = local
		apiCfg.OriginHost = origin
	}
	e.client = api.New(apiCfg, sessions)

	if withArchive && cfg.Archive.Enabled() {
		store, err := archive.Open(ctx, cfg)
		if err != nil {
			applog.Error("archive disabled: %v", err)
		} else {
			e.archive = store
		}
	}
	return e, nil
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadAppConfigFile(flagConfig)
	} else {
		cfg, err = config.LoadAppConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagAPIURL != "" {
		cfg.API.BaseURL = flagAPIURL
	}
	return cfg, nil
}

// Close releases the archive and the tunnel.
func (e *env) Close() {
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			applog.Error("close archive: %v", err)
		}
	}
	if e.tunnel != nil {
		e.tunnel.Stop()
	}
}
