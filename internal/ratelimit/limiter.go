package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix     = "tutorflow:ratelimit:"
	DefaultWindow = time.Minute
)

// скользящее окно на sorted set: score = время запроса в миллисекундах
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = now + window
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window + 10000)

return {1, limit - count - 1, now + window}
`)

// Decision результат проверки лимита
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter ограничивает частоту команд одного актора. Nil-лимитер и лимит <= 0
// пропускают всё; при недоступном Redis запрос тоже пропускается.
type Limiter struct {
	client  *redis.Client
	limit   int
	window  time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(client *redis.Client, limit int, window time.Duration, m *metrics.Metrics, logger *zap.Logger) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		client:  client,
		limit:   limit,
		window:  window,
		metrics: m,
		logger:  logger,
	}
}

// Allow учитывает запрос актора в окне; transport идёт в метрику и ключ
func (l *Limiter) Allow(ctx context.Context, transport string, actorKey int64) Decision {
	if l == nil || l.client == nil || l.limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	now := time.Now()
	key := keyPrefix + transport + ":" + strconv.FormatInt(actorKey, 10)
	fallback := Decision{Allowed: true, Remaining: l.limit - 1, ResetAt: now.Add(l.window)}

	result, err := slidingWindowScript.Run(ctx, l.client, []string{key},
		now.UnixMilli(), l.window.Milliseconds(), l.limit).Int64Slice()
	if err != nil {
		l.logger.Warn("Rate limit check failed, allowing request",
			zap.String("transport", transport),
			zap.Int64("actor_key", actorKey),
			zap.Error(err),
		)
		return fallback
	}
	if len(result) != 3 {
		l.logger.Warn("Unexpected rate limit result",
			zap.String("transport", transport),
			zap.Int("len", len(result)),
		)
		return fallback
	}

	d := Decision{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetAt:   time.UnixMilli(result[2]),
	}
	if !d.Allowed {
		l.metrics.RateLimited(transport)
		l.logger.Info("Rate limit exceeded",
			zap.String("transport", transport),
			zap.Int64("actor_key", actorKey),
		)
	}
	return d
}

func (l *Limiter) Limit() int {
	if l == nil {
		return 0
	}
	return l.limit
}

// NewClient подключается к Redis по URL и проверяет соединение
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
