package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/metrics"
)

// advanceScript увеличивает поле хэша, только если оно равно ARGV[2].
// Отсутствующее поле читается как 0.
var advanceScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if cur == tonumber(ARGV[2]) then
	return {1, redis.call('HINCRBY', KEYS[1], ARGV[1], 1)}
end
return {0, cur}
`)

// RedisStore реализует domain.ProgressStore поверх Redis.
type RedisStore struct {
	client *redis.Client
}

// Connect открывает клиента по redis:// URL и проверяет соединение.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return client, nil
}

// NewRedis создаёт хранилище прогресса.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ domain.ProgressStore = (*RedisStore)(nil)

// SetAdd добавляет member и возвращает размер множества.
func (s *RedisStore) SetAdd(ctx context.Context, set, member string) (card int64, err error) {
	defer observe("set_add", time.Now(), &err)
	var scard *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, set, member)
		scard = pipe.SCard(ctx, set)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: add %s to %s: %w", member, set, err)
	}
	return scard.Val(), nil
}

// SetAddNew добавляет member и сообщает, что его не было в множестве.
func (s *RedisStore) SetAddNew(ctx context.Context, set, member string) (added bool, err error) {
	defer observe("set_add_new", time.Now(), &err)
	n, err := s.client.SAdd(ctx, set, member).Result()
	if err != nil {
		return false, fmt.Errorf("store: add %s to %s: %w", member, set, err)
	}
	return n == 1, nil
}

// SetContains проверяет членство.
func (s *RedisStore) SetContains(ctx context.Context, set, member string) (ok bool, err error) {
	defer observe("set_contains", time.Now(), &err)
	ok, err = s.client.SIsMember(ctx, set, member).Result()
	if err != nil {
		return false, fmt.Errorf("store: check %s in %s: %w", member, set, err)
	}
	return ok, nil
}

// SetsAddAndCountContaining выполняет добавления и подсчёт в одном MULTI/EXEC.
func (s *RedisStore) SetsAddAndCountContaining(ctx context.Context, addTo, countIn []string, member string) (count int, err error) {
	if len(addTo) == 0 && len(countIn) == 0 {
		return 0, nil
	}
	defer observe("sets_add_and_count", time.Now(), &err)
	checks := make([]*redis.BoolCmd, 0, len(countIn))
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, set := range addTo {
			pipe.SAdd(ctx, set, member)
		}
		for _, set := range countIn {
			checks = append(checks, pipe.SIsMember(ctx, set, member))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: add %s to %v: %w", member, addTo, err)
	}
	for _, c := range checks {
		if c.Val() {
			count++
		}
	}
	return count, nil
}

// HashIncr атомарно меняет счётчик и возвращает новое значение.
func (s *RedisStore) HashIncr(ctx context.Context, hash, field string, delta int64) (v int64, err error) {
	defer observe("hash_incr", time.Now(), &err)
	v, err = s.client.HIncrBy(ctx, hash, field, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("store: incr %s.%s: %w", hash, field, err)
	}
	return v, nil
}

// HashSet записывает значение поля.
func (s *RedisStore) HashSet(ctx context.Context, hash, field string, value int64) (err error) {
	defer observe("hash_set", time.Now(), &err)
	if err = s.client.HSet(ctx, hash, field, value).Err(); err != nil {
		return fmt.Errorf("store: set %s.%s: %w", hash, field, err)
	}
	return nil
}

// HashAdvance переводит поле с from на from+1. Если значение уже другое,
// возвращает false и текущее значение.
func (s *RedisStore) HashAdvance(ctx context.Context, hash, field string, from int64) (advanced bool, v int64, err error) {
	defer observe("hash_advance", time.Now(), &err)
	res, err := advanceScript.Run(ctx, s.client, []string{hash}, field, from).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("store: advance %s.%s: %w", hash, field, err)
	}
	if len(res) != 2 {
		err = errors.New("store: advance: unexpected script reply")
		return false, 0, err
	}
	flag, ok1 := res[0].(int64)
	v, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		err = fmt.Errorf("store: advance: unexpected script reply %v", res)
		return false, 0, err
	}
	return flag == 1, v, nil
}

// SetsLen читает размеры множеств одним пайплайном.
func (s *RedisStore) SetsLen(ctx context.Context, sets []string) (lens []int64, err error) {
	if len(sets) == 0 {
		return nil, nil
	}
	defer observe("sets_len", time.Now(), &err)
	cmds := make([]*redis.IntCmd, 0, len(sets))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, set := range sets {
			cmds = append(cmds, pipe.SCard(ctx, set))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scard %v: %w", sets, err)
	}
	lens = make([]int64, len(cmds))
	for i, c := range cmds {
		lens[i] = c.Val()
	}
	return lens, nil
}

// Ping проверяет доступность Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func observe(op string, start time.Time, err *error) {
	metrics.ObserveNetworkRequest("redis", op, "progress", start, *err)
}
