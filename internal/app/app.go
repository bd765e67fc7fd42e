// Package app assembles the fennel process: storage, cache, event bus,
// services and the HTTP server, started in dependency order.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	_ "github.com/lib/pq"

	"github.com/Ramsey-B/fennel/config"
	"github.com/Ramsey-B/fennel/internal/dispatch"
	"github.com/Ramsey-B/fennel/internal/handlers"
	mockdatarepo "github.com/Ramsey-B/fennel/internal/repositories/mockdata"
	mockschemerepo "github.com/Ramsey-B/fennel/internal/repositories/mockscheme"
	spaceconfigrepo "github.com/Ramsey-B/fennel/internal/repositories/spaceconfig"
	templaterepo "github.com/Ramsey-B/fennel/internal/repositories/template"
	"github.com/Ramsey-B/fennel/internal/server"
	mockdatasvc "github.com/Ramsey-B/fennel/internal/services/mockdata"
	mockschemesvc "github.com/Ramsey-B/fennel/internal/services/mockscheme"
	spaceconfigsvc "github.com/Ramsey-B/fennel/internal/services/spaceconfig"
	templatesvc "github.com/Ramsey-B/fennel/internal/services/template"
	"github.com/Ramsey-B/fennel/pkg/database"
	"github.com/Ramsey-B/fennel/pkg/events"
	"github.com/Ramsey-B/fennel/pkg/health"
	"github.com/Ramsey-B/fennel/pkg/kafka"
	"github.com/Ramsey-B/fennel/pkg/redis"
	"github.com/Ramsey-B/fennel/pkg/startup"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

const (
	DependencyTracing  = "tracing"
	DependencyDatabase = "database"
	DependencyRedis    = "redis"
	DependencyKafka    = "kafka"
	DependencyServices = "services"
	DependencyServer   = "server"
)

type Options struct {
	// Serve starts the HTTP server.
	Serve bool
	// Migrate applies database migrations once connected.
	Migrate bool
}

type Services struct {
	Template    *templatesvc.Service
	MockData    *mockdatasvc.Service
	MockScheme  *mockschemesvc.Service
	SpaceConfig *spaceconfigsvc.Service
}

type App struct {
	cfg     *config.Config
	opts    Options
	logger  ectologger.Logger
	startup *startup.Startup
	checker *health.Checker

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	bus      *events.Bus
	services Services
	server   *server.Server
}

func New(cfg *config.Config, logger ectologger.Logger, opts Options) *App {
	a := &App{
		cfg:     cfg,
		opts:    opts,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		checker: health.NewChecker(cfg.Version),
	}

	var shutdownTracing func(context.Context) error
	a.startup.AddDependency(startup.Dependency{
		Name: DependencyTracing,
		OnStart: func(ctx context.Context) error {
			var err error
			shutdownTracing, err = tracing.Setup(ctx, cfg.Tracing())
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdownTracing == nil {
				return nil
			}
			return shutdownTracing(ctx)
		},
	})

	a.startup.AddDependency(startup.Dependency{
		Name:    DependencyDatabase,
		OnStart: a.startDatabase,
		OnStop: func(context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})

	serviceNeeds := []string{DependencyDatabase}

	if cfg.RedisEnabled {
		serviceNeeds = append(serviceNeeds, DependencyRedis)
		a.startup.AddDependency(startup.Dependency{
			Name: DependencyRedis,
			OnStart: func(ctx context.Context) error {
				client, err := redis.Connect(ctx, cfg.Redis(), logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			OnStop: func(context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
	}

	if kafkaCfg := cfg.Kafka(); len(kafkaCfg.Brokers) > 0 {
		serviceNeeds = append(serviceNeeds, DependencyKafka)
		a.startup.AddDependency(startup.Dependency{
			Name: DependencyKafka,
			OnStart: func(context.Context) error {
				if a.producer == nil {
					a.producer = kafka.NewProducer(kafkaCfg, logger)
				}
				return nil
			},
			OnStop: func(context.Context) error {
				if a.producer == nil {
					return nil
				}
				return a.producer.Close()
			},
		})
	}

	a.startup.AddDependency(startup.Dependency{
		Name:  DependencyServices,
		Needs: serviceNeeds,
		OnStart: func(context.Context) error {
			a.buildServices()
			return nil
		},
	})

	if opts.Serve {
		a.startup.AddDependency(startup.Dependency{
			Name:    DependencyServer,
			Needs:   []string{DependencyTracing, DependencyServices},
			OnStart: a.startServer,
			OnStop: func(ctx context.Context) error {
				if a.server == nil {
					return nil
				}
				return a.server.Stop(ctx)
			},
		})
	}

	return a
}

func (a *App) startDatabase(ctx context.Context) error {
	if a.db == nil {
		db, err := database.Connect(ctx, a.cfg.Database(), a.logger)
		if err != nil {
			return err
		}
		a.db = db
	}

	if a.opts.Migrate {
		migrations := database.NewMigrationService(a.logger, a.cfg.Migration())
		if err := migrations.MigratePostgres(a.db, a.cfg.DatabaseName); err != nil {
			return err
		}
	}
	return nil
}

// buildServices wires the bus subscribers and the services on top of the
// connected stores.
func (a *App) buildServices() {
	a.bus = events.NewBus(a.logger)

	subs := dispatch.Subscribers{}
	var cache mockdatasvc.Cache
	if a.redis != nil {
		mockDataCache := redis.NewMockDataCache(a.redis, a.cfg.CacheTTL, a.cfg.CachePrefix, a.logger)
		cache = mockDataCache
		subs.Cache = mockDataCache.HandleEvent
	}
	if a.producer != nil {
		subs.Kafka = a.producer.Publish
	}
	dispatch.Dispatch(a.bus, subs)

	templates := templaterepo.NewRepository(a.db, a.logger)
	a.services = Services{
		Template:    templatesvc.NewService(templates, a.db, a.bus, a.logger),
		MockData:    mockdatasvc.NewService(mockdatarepo.NewRepository(a.db, a.logger), templates, a.db, cache, a.bus, a.logger),
		MockScheme:  mockschemesvc.NewService(mockschemerepo.NewRepository(a.db, a.logger), templates, a.bus, a.logger),
		SpaceConfig: spaceconfigsvc.NewService(spaceconfigrepo.NewRepository(a.db, a.logger), a.db, a.bus, a.logger),
	}
}

func (a *App) startServer(ctx context.Context) error {
	a.checker.AddCheck(DependencyDatabase, a.db.PingContext)
	if a.redis != nil {
		a.checker.AddCheck(DependencyRedis, a.redis.Ping)
	}

	a.server = server.New(server.Config{
		ServiceName:    a.cfg.AppName,
		Port:           a.cfg.Port,
		ReadTimeout:    time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes: a.cfg.MaxHeaderBytes,
	}, a.logger, a.checker,
		handlers.NewTemplateHandler(a.services.Template),
		handlers.NewMockDataHandler(a.services.MockData),
		handlers.NewMockSchemeHandler(a.services.MockScheme),
		handlers.NewSpaceConfigHandler(a.services.SpaceConfig),
	)

	return a.server.Start(ctx)
}

func (a *App) Start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.checker.SetReady(true)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.checker.SetReady(false)
	return a.startup.Stop(ctx)
}

// Run starts the app, blocks until ctx is cancelled, then shuts down within
// the configured timeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return errors.Join(err, a.Stop(context.Background()))
	}

	<-ctx.Done()
	a.logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	return a.Stop(stopCtx)
}

func (a *App) Services() Services {
	return a.services
}

// Addr is the HTTP listen address, empty when not serving.
func (a *App) Addr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}
