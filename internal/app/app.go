// Package app arma el grafo de componentes del toolkit a partir de la
// configuración: storage binding, token store, bus, broker, resolver,
// monitor, guards y el controller de la barra.
package app

import (
	"fmt"

	"github.com/mapaeventos/authkit/internal/broker"
	"github.com/mapaeventos/authkit/internal/config"
	"github.com/mapaeventos/authkit/internal/events"
	"github.com/mapaeventos/authkit/internal/guard"
	"github.com/mapaeventos/authkit/internal/metrics"
	"github.com/mapaeventos/authkit/internal/nav"
	"github.com/mapaeventos/authkit/internal/observability/logger"
	"github.com/mapaeventos/authkit/internal/profile"
	"github.com/mapaeventos/authkit/internal/roles"
	"github.com/mapaeventos/authkit/internal/session"
	"github.com/mapaeventos/authkit/internal/storage"
	storagefile "github.com/mapaeventos/authkit/internal/storage/file"
	storagemem "github.com/mapaeventos/authkit/internal/storage/memory"
	storageredis "github.com/mapaeventos/authkit/internal/storage/redis"
	"github.com/mapaeventos/authkit/internal/viewstate"
)

type Container struct {
	Cfg    *config.Config
	Store  *session.TokenStore
	Bus    *events.Bus
	Broker *broker.Adapter
	Roles  *roles.Resolver

	Monitor   *session.Monitor
	AuthGuard *guard.AuthGuard
	RoleGuard *guard.RoleGuard
	NavBar    *viewstate.Controller
}

// New construye el container. navigator es el puerto de navegación del
// host (CLI, webview, tests).
func New(cfg *config.Config, navigator nav.Navigator) (*Container, error) {
	st, err := buildStorage(cfg)
	if err != nil {
		return nil, err
	}
	_ = metrics.Register(nil)

	store := session.NewTokenStore(st)
	bus := events.NewBus()

	adapter := broker.New(broker.Config{
		AuthEndpoint:  cfg.Broker.AuthEndpoint,
		TokenEndpoint: cfg.Broker.TokenEndpoint,
		ClientID:      cfg.Broker.ClientID,
		Scopes:        cfg.Broker.Scopes,
		ListenAddr:    cfg.Broker.ListenAddr,
		SignInURL:     cfg.Broker.SignInURL,
	}, store, bus, logger.Named("broker"))

	profiles := profile.NewClient(cfg.Backend.BaseURL)
	resolver := roles.NewResolver(profiles, store, logger.Named("roles"))

	monitor := session.NewMonitor(session.MonitorConfig{
		WarnThreshold: cfg.Session.WarnThreshold,
		PollInterval:  cfg.Session.PollInterval,
		LogoutDelay:   cfg.Session.LogoutDelay,
		SignInPath:    cfg.Session.SignInPath,
	}, store, navigator, logger.Named("monitor"))
	// La renovación aceptada desde el warning va silent-first; el redirect
	// completo queda para el sign-in inicial.
	monitor.SignIn = adapter.AcquireToken

	return &Container{
		Cfg:       cfg,
		Store:     store,
		Bus:       bus,
		Broker:    adapter,
		Roles:     resolver,
		Monitor:   monitor,
		AuthGuard: guard.NewAuthGuard(store, adapter, navigator, cfg.Broker.SignInURL, logger.Named("guard")),
		RoleGuard: guard.NewRoleGuard(resolver, navigator, logger.Named("guard")),
		NavBar:    viewstate.NewController(store, adapter, resolver, bus, navigator, cfg.Session.SignInPath, logger.Named("navbar")),
	}, nil
}

func buildStorage(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Kind {
	case "", "memory":
		return storagemem.New(), nil
	case "file":
		if cfg.Storage.File.Path == "" {
			return nil, fmt.Errorf("storage file: falta path")
		}
		return storagefile.New(cfg.Storage.File.Path)
	case "redis":
		return storageredis.New(cfg.Storage.Redis.Addr, cfg.Storage.Redis.DB, cfg.Storage.Redis.Prefix), nil
	default:
		return nil, fmt.Errorf("storage kind desconocido: %q", cfg.Storage.Kind)
	}
}
