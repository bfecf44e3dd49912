package app

import (
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	artifactcache "adflow/internal/cache/artifact"
	"adflow/internal/gateway/config"
	artifactrepo "adflow/internal/gateway/repository/artifact"
	"adflow/internal/gateway/repository/asset"
	projectrepo "adflow/internal/gateway/repository/project"
)

type gatewayStores struct {
	db        *sql.DB
	projects  projectrepo.Store
	artifacts *artifactcache.CachedStore
	assets    asset.Store
}

func (s *gatewayStores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openDB prefers Postgres over SQLite. Both nil means memory stores.
func openDB(cfg *config.Config) (*sql.DB, string, error) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open postgres: %w", err)
		}
		return db, dialect.Postgres, nil
	case cfg.SQLitePath != "":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open sqlite %s: %w", cfg.SQLitePath, err)
		}
		// SQLite allows one writer; serialize through one connection.
		db.SetMaxOpenConns(1)
		return db, dialect.SQLite, nil
	}
	return nil, "", nil
}

func initStores(cfg *config.Config, log *zap.Logger) (*gatewayStores, error) {
	db, dialectName, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	stores := &gatewayStores{db: db}
	if err := stores.init(cfg, dialectName, log); err != nil {
		_ = stores.Close()
		return nil, err
	}
	return stores, nil
}

func (s *gatewayStores) init(cfg *config.Config, dialectName string, log *zap.Logger) error {
	if s.db != nil {
		projects, err := projectrepo.NewSQLStore(s.db, dialectName)
		if err != nil {
			return fmt.Errorf("failed to initialize project store: %w", err)
		}
		s.projects = projects
		log.Info("project store: sql", zap.String("dialect", dialectName))
	} else {
		s.projects = projectrepo.NewMemoryStore()
		log.Info("project store: in-memory")
	}

	assets, err := chooseAssetStore(cfg, log)
	if err != nil {
		return err
	}
	s.assets = assets

	origin, err := chooseArtifactStore(cfg, s.db, dialectName, assets, log)
	if err != nil {
		return err
	}
	s.artifacts = artifactcache.NewCachedStore(origin, artifactcache.DefaultCacheConfig())
	return nil
}

func chooseAssetStore(cfg *config.Config, log *zap.Logger) (asset.Store, error) {
	if !cfg.Artifact.CanUseS3() {
		log.Info("asset store: in-memory (s3 config incomplete)")
		return asset.NewMemoryStore(), nil
	}
	s3Store, err := asset.NewS3Store(asset.S3Config{
		Endpoint:  cfg.Artifact.Endpoint,
		Region:    cfg.Artifact.Region,
		AccessKey: cfg.Artifact.AccessKey,
		SecretKey: cfg.Artifact.SecretKey,
		Bucket:    cfg.Artifact.Bucket,
		UseSSL:    cfg.Artifact.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize asset s3 store: %w", err)
	}
	log.Info("asset store: s3", zap.String("bucket", cfg.Artifact.Bucket), zap.String("endpoint", cfg.Artifact.Endpoint))
	return s3Store, nil
}

func chooseArtifactStore(cfg *config.Config, db *sql.DB, dialectName string, assets asset.Store, log *zap.Logger) (artifactrepo.Store, error) {
	backend := cfg.Artifact.Backend
	if backend == "" {
		backend = "memory"
		if db != nil {
			backend = "sql"
		}
	}
	var (
		origin artifactrepo.Store
		err    error
	)
	switch backend {
	case "memory":
		origin = artifactrepo.NewMemoryStore()
	case "sql":
		if db == nil {
			return nil, fmt.Errorf("artifact backend sql needs a database")
		}
		origin, err = artifactrepo.NewSQLStore(db, dialectName)
	case "blob":
		origin, err = artifactrepo.NewBlobStore(assets)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s artifact store: %w", backend, err)
	}
	log.Info("artifact store", zap.String("backend", backend))
	return origin, nil
}
