// Package buckets collects per client dispatch totals in memory and flushes
// them to the database on a timer
package buckets

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"orchestrator-api/internal/database"
	"orchestrator-api/internal/metrics"
	"orchestrator-api/internal/orchestrator"
	"orchestrator-api/internal/shared"

	"go.uber.org/zap"
)

type StatsCache struct {
	buckets       map[string]*bucket
	killedBuckets map[string]*bucket
	mu            sync.Mutex
	log           *zap.SugaredLogger
	db            *sql.DB

	flushInterval time.Duration
	retryDelay    time.Duration
	now           func() time.Time
}

type bucket struct {
	kind   string
	client string
	tasks  map[string]*database.DailyStats
	timer  *time.Timer
}

func NewStatsCache(log *zap.SugaredLogger, db *sql.DB) *StatsCache {
	return &StatsCache{
		db:            db,
		log:           log,
		buckets:       map[string]*bucket{},
		killedBuckets: map[string]*bucket{},
		flushInterval: shared.BucketFlushInterval,
		retryDelay:    5 * time.Second,
		now:           time.Now,
	}
}

func bucketKey(kind, client string) string {
	return kind + "/" + client
}

// Record adds one finished dispatch to its client's bucket. The first record
// in an empty bucket arms the flush timer.
func (c *StatsCache) Record(rec orchestrator.DispatchRecord) {
	kind, client := string(rec.Kind), rec.ClientName
	key := bucketKey(kind, client)

	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{kind: kind, client: client, tasks: map[string]*database.DailyStats{}}
		c.buckets[key] = b
	}

	task := string(rec.Task)
	s, ok := b.tasks[task]
	if !ok {
		s = &database.DailyStats{Kind: kind, Client: client, Task: task}
		b.tasks[task] = s
	}
	s.RequestCount++
	s.StreamFrames += uint64(rec.Frames)
	s.TotalTime += rec.Duration.Milliseconds()
	switch {
	case rec.StatusCode == shared.StatusClientClosedRequest:
		s.CanceledCount++
	case rec.Err != nil || rec.StatusCode != http.StatusOK:
		s.ErrorCount++
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(c.flushInterval, func() {
			retry := c.Flush(key)
			for retry != 0 {
				c.log.Warn("Flush requested retry, waiting...")
				time.Sleep(retry)
				retry = c.Flush(key)
			}
		})
	}
}

// Shutdown stops pending timers and flushes every bucket.
func (c *StatsCache) Shutdown() {
	c.log.Info("Shutting down stats cache")
	c.mu.Lock()
	keys := make([]string, 0, len(c.buckets))
	for key, b := range c.buckets {
		if b.timer != nil {
			b.timer.Stop()
		}
		keys = append(keys, key)
	}
	c.mu.Unlock()

	wg := sync.WaitGroup{}
	for _, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			retry := c.Flush(key)
			for retry != 0 {
				time.Sleep(retry)
				retry = c.Flush(key)
			}
		}()
	}
	wg.Wait()
}

// Flush writes one bucket to the database. A non-zero return asks the caller
// to try again after that delay because another flush of the same bucket is
// still running.
func (c *StatsCache) Flush(key string) time.Duration {
	c.mu.Lock()
	b, ok := c.buckets[key]
	if !ok {
		c.mu.Unlock()
		return 0
	}
	if _, ok := c.killedBuckets[key]; ok {
		c.mu.Unlock()
		return shared.BucketRetryDelay
	}
	c.killedBuckets[key] = b
	delete(c.buckets, key)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.killedBuckets, key)
		c.mu.Unlock()
	}()

	today := c.now().Format("2006-01-02")
	stats := make([]database.DailyStats, 0, len(b.tasks))
	for _, s := range b.tasks {
		row := *s
		row.Date = today
		stats = append(stats, row)
	}

	var err error
	for range shared.MaxFlushRetries {
		ctx := context.Background()
		err = database.ExecuteTransaction(ctx, c.db, []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				return database.SaveDailyStats(ctx, tx, stats)
			},
		})
		if err == nil {
			c.log.Infow("Flushed bucket", "client_kind", b.kind, "client_name", b.client, "tasks", len(stats))
			return 0
		}
		c.log.Errorw("Failed to execute transaction", "error", err)
		time.Sleep(c.retryDelay)
	}
	c.log.Errorw("Failed flushing stats bucket", "client_kind", b.kind, "client_name", b.client, "error", err)
	metrics.ErrorCount.WithLabelValues(b.kind, b.client, "", "save_stats").Inc()
	return 0
}
