// Package redis caches the progression leaderboard in a Redis sorted set.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/progression/internal/domain"
)

// Key layout:
//   - sorted set  progression:leaderboard:scores  user_id -> level*levelFactor + xp
//   - hash        progression:leaderboard:entries user_id -> cachedEntry JSON
//   - string      progression:leaderboard:built   set once a rebuild completed
const (
	keyScores  = "progression:leaderboard:scores"
	keyEntries = "progression:leaderboard:entries"
	keyBuilt   = "progression:leaderboard:built"

	// levelFactor keeps xp (always below level*100) from overflowing into the level part.
	levelFactor = 1e9
)

// upsertScript writes an entry only when its version is newer than the cached one.
var upsertScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[2], ARGV[1])
if current then
  local decoded = cjson.decode(current)
  if tonumber(decoded['version']) >= tonumber(ARGV[3]) then
    return 0
  end
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[4])
return 1
`)

// Options configures the Redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient opens a Redis client and verifies connectivity.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

type cachedEntry struct {
	UserID              string `json:"user_id"`
	Level               int    `json:"level"`
	XP                  int    `json:"xp"`
	TotalWorkouts       int64  `json:"total_workouts"`
	TotalCaloriesBurned int64  `json:"total_calories_burned"`
	CurrentStreak       int    `json:"current_streak"`
	LongestStreak       int    `json:"longest_streak"`
	Version             int64  `json:"version"`
}

func entryFromRecord(r domain.Record) cachedEntry {
	return cachedEntry{
		UserID:              r.UserID,
		Level:               r.Level,
		XP:                  r.XP,
		TotalWorkouts:       r.TotalWorkouts,
		TotalCaloriesBurned: r.TotalCaloriesBurned,
		CurrentStreak:       r.CurrentStreak,
		LongestStreak:       r.LongestStreak,
		Version:             r.Version,
	}
}

func (e cachedEntry) record() domain.Record {
	return domain.Record{
		UserID:              e.UserID,
		Level:               e.Level,
		XP:                  e.XP,
		TotalWorkouts:       e.TotalWorkouts,
		TotalCaloriesBurned: e.TotalCaloriesBurned,
		CurrentStreak:       e.CurrentStreak,
		LongestStreak:       e.LongestStreak,
		Version:             e.Version,
		Achievements:        []domain.Achievement{},
	}
}

func score(level, xp int) float64 {
	return float64(level)*levelFactor + float64(xp)
}

// LeaderboardCache serves leaderboard reads from Redis and falls back to the
// primary store until the cache has been built or whenever Redis fails.
// Rank inputs only grow, so a snapshot of the top MaxLeaderboardSize records
// plus every later commit is enough to answer any TopN request.
type LeaderboardCache struct {
	client   redis.UniversalClient
	fallback domain.RankingSource
	logger   *slog.Logger
}

// Option customises the cache.
type Option func(*LeaderboardCache)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *LeaderboardCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewLeaderboardCache constructs a LeaderboardCache.
func NewLeaderboardCache(client redis.UniversalClient, fallback domain.RankingSource, opts ...Option) *LeaderboardCache {
	c := &LeaderboardCache{client: client, fallback: fallback, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ domain.RankingSource  = (*LeaderboardCache)(nil)
	_ domain.CommitObserver = (*LeaderboardCache)(nil)
)

// RecordCommitted implements domain.CommitObserver.
func (c *LeaderboardCache) RecordCommitted(ctx context.Context, record domain.Record) error {
	_, err := c.upsert(ctx, record)
	return err
}

// upsert reports whether the entry was written.
func (c *LeaderboardCache) upsert(ctx context.Context, record domain.Record) (bool, error) {
	data, err := json.Marshal(entryFromRecord(record))
	if err != nil {
		return false, err
	}
	written, err := upsertScript.Run(ctx, c.client,
		[]string{keyScores, keyEntries},
		record.UserID,
		strconv.FormatFloat(score(record.Level, record.XP), 'f', -1, 64),
		record.Version,
		data,
	).Int()
	if err != nil {
		return false, fmt.Errorf("leaderboard cache upsert %s: %w", record.UserID, err)
	}
	return written == 1, nil
}

// Rebuild loads the top records from the fallback store and merges them into
// the cache. Entries already holding a newer version are kept.
func (c *LeaderboardCache) Rebuild(ctx context.Context) (int, error) {
	records, err := c.fallback.TopRecords(ctx, domain.MaxLeaderboardSize)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, rec := range records {
		ok, err := c.upsert(ctx, rec)
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	if err := c.client.Set(ctx, keyBuilt, time.Now().UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return written, err
	}
	return written, nil
}

// TopRecords implements domain.RankingSource. Records tied with the last
// entry are all returned so the caller can break ties on user id.
func (c *LeaderboardCache) TopRecords(ctx context.Context, limit int) ([]domain.Record, error) {
	records, err := c.topFromCache(ctx, limit)
	if err == nil {
		return records, nil
	}
	if !errors.Is(err, errCacheCold) {
		c.logger.Warn("leaderboard cache read failed, using primary store", "error", err)
	}
	return c.fallback.TopRecords(ctx, limit)
}

var errCacheCold = errors.New("leaderboard cache not built")

func (c *LeaderboardCache) topFromCache(ctx context.Context, limit int) ([]domain.Record, error) {
	built, err := c.client.Exists(ctx, keyBuilt).Result()
	if err != nil {
		return nil, err
	}
	if built == 0 {
		return nil, errCacheCold
	}

	top, err := c.client.ZRevRangeWithScores(ctx, keyScores, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return []domain.Record{}, nil
	}

	members := make([]string, 0, len(top))
	seen := make(map[string]struct{}, len(top))
	for _, z := range top {
		id := fmt.Sprint(z.Member)
		members = append(members, id)
		seen[id] = struct{}{}
	}

	if len(top) == limit {
		boundary := strconv.FormatFloat(top[len(top)-1].Score, 'f', -1, 64)
		tied, err := c.client.ZRangeByScore(ctx, keyScores, &redis.ZRangeBy{Min: boundary, Max: boundary}).Result()
		if err != nil {
			return nil, err
		}
		for _, id := range tied {
			if _, ok := seen[id]; !ok {
				members = append(members, id)
				seen[id] = struct{}{}
			}
		}
	}

	values, err := c.client.HMGet(ctx, keyEntries, members...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("leaderboard cache entry missing for %s", members[i])
		}
		var entry cachedEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode leaderboard entry %s: %w", members[i], err)
		}
		records = append(records, entry.record())
	}
	domain.SortRanking(records)
	return records, nil
}
