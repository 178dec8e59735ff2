package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	promadapter "github.com/goliatone/go-accounts/adapters/prometheus"
	"github.com/goliatone/go-accounts/core"
	redisindex "github.com/goliatone/go-accounts/index/redis"
	accountmigrations "github.com/goliatone/go-accounts/migrations"
	"github.com/goliatone/go-accounts/security"
	sqlstore "github.com/goliatone/go-accounts/store/sql"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type runtime struct {
	service *core.Service
	factory *sqlstore.RepositoryFactory
	client  *persistence.Client
	redis   *redis.Client
}

func (r *runtime) Close() error {
	var err error
	if r.redis != nil {
		err = r.redis.Close()
	}
	if r.client != nil {
		if closeErr := r.client.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func openPersistence(ctx context.Context, cfg DatabaseConfig) (*persistence.Client, error) {
	sqlDB, err := sql.Open(cfg.GetDriver(), cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("accountsd: open database: %w", err)
	}
	client, err := persistence.New(cfg, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("accountsd: persistence client: %w", err)
	}
	if !cfg.MigrateOnBoot {
		return client, nil
	}
	_, err = accountmigrations.Register(ctx, func(_ context.Context, dialect string, fsys fs.FS) error {
		if dialect != accountmigrations.DialectPostgres {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, accountmigrations.WithDialects(accountmigrations.DialectPostgres))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("accountsd: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("accountsd: migrate: %w", err)
	}
	return client, nil
}

func newContactCipher(cfg SecurityConfig) (*security.ContactCipher, error) {
	key := secretFromEnv(cfg.KeyEnv)
	if key == "" {
		return nil, fmt.Errorf("accountsd: contact key env %s is empty", cfg.KeyEnv)
	}
	opts := []security.Option{
		security.WithKeyID(cfg.KeyID),
		security.WithVersion(cfg.KeyVersion),
	}
	if fingerprint := secretFromEnv(cfg.FingerprintKeyEnv); fingerprint != "" {
		opts = append(opts, security.WithFingerprintKey([]byte(fingerprint)))
	}
	return security.NewContactCipherFromString(key, opts...)
}

type referenceCaches struct {
	custodian    *sqlstore.CachedReadThrough[core.CustodianOrg]
	frameworkSet *sqlstore.CachedReadThrough[[]string]
	taxonomy     *sqlstore.CachedReadThrough[core.FrameworkTaxonomy]
}

func newReferenceCaches(cfg CacheConfig) (referenceCaches, error) {
	config := repositorycache.DefaultConfig()
	if cfg.TTL.Duration > 0 {
		config.TTL = cfg.TTL.Duration
	}
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		return referenceCaches{}, fmt.Errorf("accountsd: cache service: %w", err)
	}
	var caches referenceCaches
	if caches.custodian, err = sqlstore.NewCachedReadThrough[core.CustodianOrg]("custodian", cacheService); err != nil {
		return referenceCaches{}, err
	}
	if caches.frameworkSet, err = sqlstore.NewCachedReadThrough[[]string]("framework_set", cacheService); err != nil {
		return referenceCaches{}, err
	}
	if caches.taxonomy, err = sqlstore.NewCachedReadThrough[core.FrameworkTaxonomy]("taxonomy", cacheService); err != nil {
		return referenceCaches{}, err
	}
	return caches, nil
}

func buildRuntime(
	ctx context.Context,
	cfg DaemonConfig,
	configPath string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (*runtime, error) {
	client, err := openPersistence(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rt := &runtime{client: client}

	cipher, err := newContactCipher(cfg.Security)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	caches, err := newReferenceCaches(cfg.Cache)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	membershipIDs, err := core.NewSnowflakeGenerator(cfg.NodeID)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("accountsd: snowflake node: %w", err)
	}

	factory := sqlstore.NewRepositoryFactory()
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithLoggerProvider(provider),
		core.WithLogger(logger),
		core.WithMetricsRecorder(promadapter.NewRecorder(promadapter.Config{Namespace: cfg.Metrics.Namespace})),
		core.WithConfigProvider(core.NewCfgxConfigProvider(FileConfigLoader{Path: configPath})),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithContactCipher(cipher),
		core.WithMembershipIDGenerator(membershipIDs),
		core.WithCustodianCache(caches.custodian),
		core.WithFrameworkSetCache(caches.frameworkSet),
		core.WithTaxonomyCache(caches.taxonomy),
	)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("accountsd: build service: %w", err)
	}
	rt.service = svc
	rt.factory = factory

	rt.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	index := redisindex.NewSearchIndex(rt.redis, cfg.Redis.Prefix)

	svc.RegisterProjector(core.ProjectorActivity, core.NewLifecycleActivityProjector(factory.ActivityStore()))
	svc.RegisterProjector(core.ProjectorIndex, core.NewIndexProjector(factory.UserStore(), factory.MembershipStore(), index))
	svc.RegisterProjector(core.ProjectorNotification, core.NewOnboardingNotificationProjector(
		factory.UserStore(),
		cipher,
		logNotificationSender{logger: provider.GetLogger("accounts.notifications")},
	))
	return rt, nil
}
