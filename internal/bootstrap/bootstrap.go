// Package bootstrap wires the configured persistence adapter, id allocator and event producer into
// an OrderService. The server and servicectl share it.
package bootstrap

import (
	"context"
	"fmt"

	"ms-service-orders/internal/config"
	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/order"
	"ms-service-orders/internal/order/db"
	"ms-service-orders/internal/order/file"
	orderkafka "ms-service-orders/internal/order/kafka"
	"ms-service-orders/internal/order/memory"
	orderredis "ms-service-orders/internal/order/redis"
	"ms-service-orders/internal/order/rest"
	"ms-service-orders/internal/orderid"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQL    = "sql"
	BackendRest   = "rest"

	IDStoreShared = "store"
	IDStoreRedis  = "redis"
)

type App struct {
	Service   *order.OrderService
	Allocator *orderid.Allocator
	Producer  *orderkafka.Producer

	logger  *logger.Logger
	closers []func() error
}

// Build connects the backends named in cfg and loads the persisted state. On error everything
// opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...order.Option) (*App, error) {
	app := &App{logger: log}

	store, err := app.openStore(ctx, cfg, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	var usedIDs orderid.UsedIDStore = store
	switch cfg.Store.IDStore {
	case "", IDStoreShared:
	case IDStoreRedis:
		client, err := orderredis.Connect(ctx, cfg.Redis)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		usedIDs = orderredis.NewUsedIDs(client, cfg.Redis.UsedKey, log)
		log.Info("BOOTSTRAP", fmt.Sprintf("Issued order ids kept in redis set %s", cfg.Redis.UsedKey))
	default:
		app.Close()
		return nil, fmt.Errorf("unknown ID_STORE %q", cfg.Store.IDStore)
	}

	app.Allocator = orderid.NewAllocator(usedIDs, log, orderid.WithTimeout(cfg.Store.Timeout))
	if err := app.Allocator.Initialize(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize order id allocator: %w", err)
	}

	// A typed nil *Producer would not compare equal to nil inside the service.
	var events order.EventPublisher
	if cfg.Kafka.Enabled {
		app.Producer = orderkafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, log)
		app.closers = append(app.closers, app.Producer.Close)
		events = app.Producer
	}

	opts = append([]order.Option{order.WithTimeout(cfg.Store.Timeout)}, opts...)
	app.Service = order.NewOrderService(store, app.Allocator, events, log, opts...)
	if err := app.Service.Load(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to load service orders: %w", err)
	}

	return app, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (order.Adapter, error) {
	switch cfg.Store.Backend {
	case BackendMemory:
		log.Warn("BOOTSTRAP", "Using in-memory store, nothing will survive a restart")
		return memory.New(), nil

	case "", BackendFile:
		store, err := file.New(cfg.Store.FileDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}
		log.Info("BOOTSTRAP", fmt.Sprintf("Using file store in %s", cfg.Store.FileDir))
		return store, nil

	case BackendSQL:
		bunDB, err := db.Open(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bunDB.Close)
		if err := db.Migrate(ctx, bunDB); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.LogDatabase("migrate", "service_orders", "Schema is up to date")
		return db.New(bunDB), nil

	case BackendRest:
		if cfg.Rest.Instance == "" || cfg.Rest.APIKey == "" {
			return nil, fmt.Errorf("REST_INSTANCE and REST_API_KEY are required for the rest backend")
		}
		client := rest.NewClient(cfg.Rest.BaseURL, cfg.Rest.Instance, cfg.Rest.APIKey, cfg.Rest.Timeout)
		log.Info("BOOTSTRAP", fmt.Sprintf("Using rest store at %s", cfg.Rest.BaseURL))
		return rest.New(client, rest.Tables{
			Orders:  cfg.Rest.OrdersTable,
			History: cfg.Rest.HistoryTable,
			UsedIDs: cfg.Rest.UsedIDsTable,
		}), nil

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("BOOTSTRAP", fmt.Sprintf("Error during shutdown: %v", err))
		}
	}
	a.closers = nil
}
