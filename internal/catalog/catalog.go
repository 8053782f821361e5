// Package catalog loads backend clients registered in the database, caching
// the listing in redis so that replicas starting together hit mysql once.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"orchestrator-api/internal/config"
	"orchestrator-api/internal/database"
	"orchestrator-api/internal/shared"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKey = "orchestrator:v1:clients"

type Catalog struct {
	RDB         *sql.DB
	RedisClient *redis.Client
	Log         *zap.SugaredLogger
	TTL         time.Duration
}

func New(rdb *sql.DB, redisClient *redis.Client, log *zap.SugaredLogger) *Catalog {
	return &Catalog{RDB: rdb, RedisClient: redisClient, Log: log, TTL: shared.ClientCatalogCacheTTL}
}

// Clients returns the enabled catalog rows, from cache when possible.
func (c *Catalog) Clients(ctx context.Context) ([]database.ClientRow, error) {
	if c.RedisClient != nil {
		cached, err := c.RedisClient.Get(ctx, cacheKey).Result()
		if err == nil && cached != "" {
			var rows []database.ClientRow
			if err := json.Unmarshal([]byte(cached), &rows); err == nil {
				c.Log.Debugw("Cache hit for client catalog", "clients", len(rows))
				return rows, nil
			}
			c.Log.Warnw("Failed to unmarshal cached client catalog", "error", err)
		} else if err != nil && !errors.Is(err, redis.Nil) {
			c.Log.Warnw("Failed reading client catalog cache", "error", err)
		}
	}

	c.Log.Debugw("Cache miss, querying database for client catalog")
	if c.RDB == nil {
		return nil, errors.New("no database configured for client catalog")
	}
	rows, err := database.ListClients(ctx, c.RDB)
	if err != nil {
		return nil, err
	}

	if c.RedisClient != nil {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cacheJSON, err := json.Marshal(rows)
			if err != nil {
				c.Log.Warnw("Failed to marshal client catalog for cache", "error", err)
				return
			}
			if err := c.RedisClient.Set(cacheCtx, cacheKey, cacheJSON, c.TTL).Err(); err != nil {
				c.Log.Warnw("Failed to cache client catalog", "error", err, "cache_key", cacheKey)
			}
		}()
	}
	return rows, nil
}

// Invalidate drops the cached listing.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if c.RedisClient == nil {
		return nil
	}
	return c.RedisClient.Del(ctx, cacheKey).Err()
}

// ServiceConfig converts a catalog row.
func ServiceConfig(row database.ClientRow) config.ServiceConfig {
	svc := config.ServiceConfig{
		Hostname:       row.Hostname,
		Port:           row.Port,
		RequestTimeout: time.Duration(row.RequestTimeoutMs) * time.Millisecond,
	}
	if row.TLS {
		svc.TLS = &config.TLSConfig{InsecureSkipVerify: row.TLSInsecure}
	}
	if row.HealthHostname != nil && *row.HealthHostname != "" {
		health := &config.ServiceConfig{Hostname: *row.HealthHostname, TLS: svc.TLS}
		if row.HealthPort != nil {
			health.Port = *row.HealthPort
		}
		svc.HealthService = health
	}
	return svc
}

// Apply merges the catalog into cfg. Entries already present in cfg win.
// It returns how many clients were added.
func (c *Catalog) Apply(ctx context.Context, cfg *config.Config) (int, error) {
	rows, err := c.Clients(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, row := range rows {
		svc := ServiceConfig(row)
		if err := svc.Validate(); err != nil {
			c.Log.Warnw("Skipping invalid catalog client", "kind", row.Kind, "name", row.Name, "error", err)
			continue
		}
		if !cfg.Merge(row.Kind, row.Name, svc) {
			c.Log.Infow("Catalog client shadowed by config file", "kind", row.Kind, "name", row.Name)
			continue
		}
		added++
	}
	c.Log.Infow("Loaded client catalog", "clients", len(rows), "added", added)
	return added, nil
}
