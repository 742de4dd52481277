package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"deepfake/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisCache,
	NewHistoryRepo,
	NewAssessmentCacheRepo,
	NewAssessor,
	NewVideoAssessor,
	DetectorSet,
)

// Data holds the database handles. Pool and SQLite are nil when no database
// of that driver is configured.
type Data struct {
	Pool   *pgxpool.Pool // pgx queries
	DB     *sql.DB       // database/sql for migrations
	SQLite *sql.DB
}

// NewData new a data instance
func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	log := log.NewHelper(logger)
	if !c.Enabled() {
		log.Info("database not configured, history is kept in memory")
		return &Data{}, func() {}, nil
	}
	if c.Database.Driver == "sqlite" {
		db, err := OpenSQLite(c.Database.Source)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("history stored in sqlite database %s", c.Database.Source)
		cleanup := func() {
			log.Info("closing sqlite database")
			db.Close()
		}
		return &Data{SQLite: db}, cleanup, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pgxConfig, err := newPgxPoolConfig(c)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid database source: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgxConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := RunMigrate(db); err != nil {
		db.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	log.Info("database connected and migrated")

	cleanup := func() {
		log.Info("closing db connections")
		db.Close()
		pool.Close()
	}

	return &Data{
		Pool: pool,
		DB:   db,
	}, cleanup, nil
}

// newPgxPoolConfig creates a pgxpool.Config from conf.Data
func newPgxPoolConfig(c *conf.Data) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.Database.Source)
	if err != nil {
		return nil, err
	}
	pool := c.Database.Pool
	if pool.MaxOpenConns > 0 {
		cfg.MaxConns = pool.MaxOpenConns
	}
	if pool.MinIdleConns > 0 {
		cfg.MinConns = pool.MinIdleConns
	}
	if pool.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = time.Duration(pool.MaxConnLifetime) * time.Minute
	}
	if pool.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = time.Duration(pool.MaxConnIdleTime) * time.Minute
	}

	return cfg, nil
}
