package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/matheus3301/wpp-bridge/internal/bus"
	"github.com/matheus3301/wpp-bridge/internal/chatwoot"
	"github.com/matheus3301/wpp-bridge/internal/config"
	"github.com/matheus3301/wpp-bridge/internal/groupsync"
	"github.com/matheus3301/wpp-bridge/internal/identity"
	"github.com/matheus3301/wpp-bridge/internal/lock"
	"github.com/matheus3301/wpp-bridge/internal/logging"
	"github.com/matheus3301/wpp-bridge/internal/mention"
	"github.com/matheus3301/wpp-bridge/internal/relay"
	"github.com/matheus3301/wpp-bridge/internal/status"
	"github.com/matheus3301/wpp-bridge/internal/store"
	"github.com/matheus3301/wpp-bridge/internal/wa"
	"github.com/matheus3301/wpp-bridge/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ledgerRetention bounds how long relay records are kept for deduplication.
const ledgerRetention = 30 * 24 * time.Hour

// Params holds what the entrypoint resolved before the fx graph is built.
type Params struct {
	ConfigPath string
	// Config skips loading when set.
	Config *config.Config
}

// Module returns the fx module for the bridge daemon.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAdapter,
			provideChatwoot,
			provideResolver,
			provideGroupSync,
			provideTranslator,
			provideBridge,
			provideInbound,
			provideWebhookRelay,
			provideHTTPServer,
			provideHealthServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(p.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:     cfg.LogLevel,
		LogPath:   cfg.LogPath(),
		InboxID:   cfg.InboxID,
		Container: cfg.InDocker,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", cfg.SessionPath))
	l, err := lock.Acquire(cfg.SessionPath, cfg.InboxID)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.LedgerDBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	if n, err := db.Prune(context.Background(), time.Now().Add(-ledgerRetention)); err != nil {
		logger.Warn("ledger prune failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("ledger pruned", zap.Int64("removed", n))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAdapter(cfg *config.Config, _ *lock.Lock, b *bus.Bus, m *status.Machine, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), wa.Options{
		DBPath:     cfg.SessionDBPath(),
		DeviceName: cfg.DeviceName,
	}, b, m, logger)
}

func provideChatwoot(cfg *config.Config, logger *zap.Logger) *chatwoot.Client {
	return chatwoot.New(chatwoot.Options{
		BaseURL:     cfg.ChatwootURL,
		AccountID:   cfg.AccountID,
		AccessToken: cfg.AccessToken,
		Logger:      logger,
	})
}

func provideResolver(cfg *config.Config, cw *chatwoot.Client, logger *zap.Logger) *identity.Resolver {
	return identity.NewResolver(cw, cfg.InboxID, cfg.SourceIDPrefix, logger)
}

func provideGroupSync(cfg *config.Config, adapter *wa.Adapter, resolver *identity.Resolver, cw *chatwoot.Client, logger *zap.Logger) *groupsync.Synchronizer {
	return groupsync.New(adapter, resolver, cw, cfg.GroupAttribute, logger)
}

func provideTranslator(adapter *wa.Adapter) *mention.Translator {
	return mention.NewTranslator(adapter)
}

func provideBridge(resolver *identity.Resolver, cw *chatwoot.Client, groups *groupsync.Synchronizer, db *store.DB, logger *zap.Logger) *relay.Bridge {
	return relay.NewBridge(resolver, cw, groups, db, logger)
}

func provideInbound(b *bus.Bus, adapter *wa.Adapter, bridge *relay.Bridge, groups *groupsync.Synchronizer, db *store.DB, logger *zap.Logger) *relay.Inbound {
	return relay.NewInbound(b, adapter, bridge, groups, db, logger)
}

func provideWebhookRelay(cfg *config.Config, cw *chatwoot.Client, adapter *wa.Adapter, translator *mention.Translator, db *store.DB, logger *zap.Logger) *webhook.Relay {
	return webhook.NewRelay(webhook.Options{
		InboxID:   cfg.InboxID,
		Token:     cfg.AuthToken,
		CRM:       cw,
		Transport: adapter,
		Mentions:  translator,
		Ledger:    db,
		Logger:    logger,
	})
}

func provideHTTPServer(cfg *config.Config, rel *webhook.Relay, adapter *wa.Adapter, m *status.Machine, logger *zap.Logger) *HTTPServer {
	var handler http.Handler = webhook.NewHandler(rel, logger)
	return NewHTTPServer(cfg.Port, NewRouter(handler, adapter, m, logger), logger)
}

func provideHealthServer(cfg *config.Config, b *bus.Bus, m *status.Machine, logger *zap.Logger) (*HealthServer, error) {
	return NewHealthServer(cfg.SocketPath(), b, m, logger)
}

type lifecycleDeps struct {
	fx.In

	Lock    *lock.Lock
	DB      *store.DB
	Adapter *wa.Adapter
	Inbound *relay.Inbound
	HTTP    *HTTPServer
	Health  *HealthServer
	Machine *status.Machine
	Bus     *bus.Bus
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	logger := d.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribe before whatsmeow can emit anything.
			d.Inbound.Start(context.Background())

			handler := wa.NewEventHandler(d.Bus, d.Machine, d.Adapter.Self, logger)
			d.Adapter.RegisterEventHandler(handler.Handle)

			d.Health.Start()

			if err := d.HTTP.Start(); err != nil {
				return err
			}

			if err := d.Adapter.Start(); err != nil {
				logger.Error("whatsapp start failed", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := d.HTTP.Stop(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			d.Adapter.Stop()
			d.Inbound.Stop()
			d.Health.Stop()
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("bridge stopped", zap.Uint64("dropped_events", d.Bus.Dropped()))
			_ = logger.Sync()
			return nil
		},
	})
}
