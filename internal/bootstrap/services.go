// Package bootstrap wires together the watcher's service dependencies from a
// resolved config.Config, with the same graceful-degradation discipline the
// teacher's own service initialization followed: a missing or broken history
// database is a warning, never a reason to refuse to start.
package bootstrap

import (
	"fmt"

	"ing.wik/watchz/internal/config"
	"ing.wik/watchz/internal/credentials"
	"ing.wik/watchz/internal/dockerapi"
	"ing.wik/watchz/internal/events"
	"ing.wik/watchz/internal/logging"
	"ing.wik/watchz/internal/notify"
	"ing.wik/watchz/internal/reference"
	"ing.wik/watchz/internal/registry"
	"ing.wik/watchz/internal/storage"
)

// Dependencies holds every initialized collaborator a tick needs.
type Dependencies struct {
	Docker    *dockerapi.Client
	Registry  *registry.Manager
	Bus       *events.Bus
	Notifiers []notify.Notifier
	History   *storage.HistoryStore // nil when history persistence is disabled or failed to open
}

// Options configures initialization behavior beyond what's in config.Config.
type Options struct {
	HistoryFile     string // empty disables history persistence
	RequireHistory  bool   // when true, a history open failure is fatal instead of a warning
	CredentialsPath string // defaults to credentials.DefaultConfigPath() when empty
}

// Initialize builds Dependencies for cfg and opts. It returns a cleanup
// function that releases every successfully acquired resource in reverse
// acquisition order; callers should defer it immediately.
func Initialize(cfg config.Config, opts Options, log *logging.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	docker, err := dockerapi.New(cfg.Host, cfg.APIVersion, log)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("bootstrap: connect to engine: %w", err)
	}
	deps.Docker = docker
	cleanups = append(cleanups, func() { docker.Close() })

	credsPath := opts.CredentialsPath
	if credsPath == "" {
		credsPath = credentials.DefaultConfigPath()
	}
	store := credentials.Load(credsPath, log)
	if cfg.DockerUsername != "" && cfg.DockerPassword != "" {
		store.AddCredential(reference.DefaultRegistry, registry.Credential{
			Registry: reference.DefaultRegistry,
			Username: cfg.DockerUsername,
			Password: cfg.DockerPassword,
		})
	}

	registryClient := registry.NewClient(store, log)
	cleanups = append(cleanups, registryClient.Close)
	deps.Registry = registry.NewManager(registryClient, log)
	cleanups = append(cleanups, deps.Registry.Close)

	deps.Bus = events.NewBus()

	notifiers, err := notify.ParseAll(joinURLs(cfg.NotificationURLs))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("bootstrap: parse notification urls: %w", err)
	}
	deps.Notifiers = notifiers

	if opts.HistoryFile != "" {
		history, err := storage.Open(opts.HistoryFile)
		if err != nil {
			if opts.RequireHistory {
				cleanup()
				return nil, nil, fmt.Errorf("bootstrap: open history store: %w", err)
			}
			if log != nil {
				log.Warn("history store unavailable, continuing without it: %v", err)
			}
		} else {
			deps.History = history
			cleanups = append(cleanups, func() { history.Close() })
		}
	}

	return deps, cleanup, nil
}

func joinURLs(urls []string) string {
	out := ""
	for i, u := range urls {
		if i > 0 {
			out += ","
		}
		out += u
	}
	return out
}
