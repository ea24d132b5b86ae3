package cli

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/gemmirror/pkg/cache"
	"github.com/matzehuels/gemmirror/pkg/errors"
	"github.com/matzehuels/gemmirror/pkg/lock"
	"github.com/matzehuels/gemmirror/pkg/report"
)

// backends holds the cache, lock and report sinks selected by the
// configuration. Redis-backed cache and lock share one client.
type backends struct {
	cache  cache.Cache
	locker lock.Locker
	sinks  report.Multi
	redis  redis.UniversalClient

	// history is the Mongo sink when one is configured, queried by /status.
	history *report.Mongo
}

// openBackends connects everything cfg asks for. root is the validated
// mirror root, used for the file lock and the Redis lock key.
func openBackends(ctx context.Context, cfg *Config, root string, logger *log.Logger) (b *backends, err error) {
	b = &backends{}
	defer func() {
		if err != nil {
			b.Close(ctx)
		}
	}()

	if cfg.Cache.Backend == BackendRedis || cfg.Lock.Backend == BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.redis = client
		if err := client.Ping(ctx).Err(); err != nil {
			return b, errors.Wrap(errors.ErrCodeNetwork, err, "connect to redis at %s", cfg.Redis.Addr)
		}
	}

	switch cfg.Cache.Backend {
	case BackendRedis:
		b.cache = cache.NewRedisCacheFromClient(b.redis)
	case BackendFile:
		dir, err := cfg.cacheDir()
		if err != nil {
			logger.Warn("cache directory unavailable, caching disabled", "err", err)
			b.cache = cache.NewNullCache()
			break
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return b, errors.Wrap(errors.ErrCodeStorage, err, "open cache")
		}
		b.cache = fc
	default:
		b.cache = cache.NewNullCache()
	}

	switch cfg.Lock.Backend {
	case BackendRedis:
		b.locker = lock.NewRedisLocker(b.redis, lockKey(root), cfg.Lock.StaleAfter)
	case BackendFile:
		b.locker = lock.NewFileLocker(root, cfg.Lock.StaleAfter)
	default:
		b.locker = lock.Noop{}
	}

	b.sinks = report.Multi{report.NewLog(logger)}
	if cfg.Report.JSON != "" {
		b.sinks = append(b.sinks, report.NewJSONFile(cfg.Report.JSON))
	}
	if cfg.Report.MongoURI != "" {
		m, err := report.NewMongo(ctx, cfg.Report.MongoURI, cfg.Report.MongoDatabase)
		if err != nil {
			return b, errors.Wrap(errors.ErrCodeNetwork, err, "connect to mongodb")
		}
		b.sinks = append(b.sinks, m)
		b.history = m
	}
	return b, nil
}

// lockKey names the Redis lock of one mirror root.
func lockKey(root string) string {
	return appName + ":lock:" + cache.Hash([]byte(root))[:16]
}

// Close releases every connection. The shared Redis client is closed once.
func (b *backends) Close(ctx context.Context) {
	if b.sinks != nil {
		_ = b.sinks.Close(ctx)
	}
	if _, shared := b.cache.(*cache.RedisCache); b.cache != nil && !shared {
		_ = b.cache.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}
