package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

const (
	reservedPrefix = "reserved:"
	orderPrefix    = "order:"
)

// luaBindIfMatch 仅当 key 仍是本请求的占位值时才绑定 order_id。
const luaBindIfMatch = `
local key = KEYS[1]
local marker = ARGV[1]
local value = ARGV[2]
local ttlSec = tonumber(ARGV[3])
if redis.call('GET', key) == marker then
  redis.call('SET', key, value, 'EX', ttlSec)
  return 1
end
return 0
`

// luaReleaseIfMatch 仅当值匹配时才删除，避免误删别的请求的占位。
const luaReleaseIfMatch = `
local key = KEYS[1]
local marker = ARGV[1]
if redis.call('GET', key) == marker then
  return redis.call('DEL', key)
end
return 0
`

// luaTakeoverIfBound 幂等键仍绑定在旧订单上时，换成新的占位值。
const luaTakeoverIfBound = `
local key = KEYS[1]
local bound = ARGV[1]
local marker = ARGV[2]
local ttlSec = tonumber(ARGV[3])
if redis.call('GET', key) == bound then
  redis.call('SET', key, marker, 'EX', ttlSec)
  return 1
end
return 0
`

// Reservation 一次 Reserve 的结果。
//   - Acquired: 本请求拿到了占位，需要继续建单，然后 Bind 或 Release
//   - OrderID != "": 同一幂等键之前已经建单成功
//   - 两者都为空：另一个请求正在建单
type Reservation struct {
	Key      string
	Acquired bool
	OrderID  string

	marker string
}

// InProgress 另一个请求持有占位且尚未绑定订单。
func (r Reservation) InProgress() bool { return !r.Acquired && r.OrderID == "" }

// IdempotencyStore 基于 SETNX 的建单幂等。
type IdempotencyStore struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *rd.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Reserve SETNX 占位；已存在时返回已绑定的 order_id 或进行中状态。
func (s *IdempotencyStore) Reserve(ctx context.Context, email, idemKey string) (Reservation, error) {
	key := IdempotencyKey(email, idemKey)
	marker := reservedPrefix + uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, key, marker, s.ttl).Result()
	if err != nil {
		return Reservation{}, err
	}
	if ok {
		return Reservation{Key: key, Acquired: true, marker: marker}, nil
	}

	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			// 占位刚好被释放或过期，按进行中处理，由客户端重试
			return Reservation{Key: key}, nil
		}
		return Reservation{}, err
	}
	if orderID, found := strings.CutPrefix(val, orderPrefix); found {
		return Reservation{Key: key, OrderID: orderID}, nil
	}
	return Reservation{Key: key}, nil
}

// Bind 建单成功后把占位替换为 order_id，TTL 重新计算。
func (s *IdempotencyStore) Bind(ctx context.Context, res Reservation, orderID string) error {
	if !res.Acquired {
		return nil
	}
	ttlSec := int64(s.ttl / time.Second)
	_, err := s.rdb.Eval(ctx, luaBindIfMatch, []string{res.Key}, res.marker, orderPrefix+orderID, ttlSec).Int()
	return err
}

// Takeover 旧订单已失败时接管幂等键；并发请求中只有一个能拿到占位。
func (s *IdempotencyStore) Takeover(ctx context.Context, res Reservation) (Reservation, error) {
	if res.Acquired || res.OrderID == "" {
		return Reservation{Key: res.Key}, nil
	}
	marker := reservedPrefix + uuid.NewString()
	ttlSec := int64(s.ttl / time.Second)
	ok, err := s.rdb.Eval(ctx, luaTakeoverIfBound, []string{res.Key}, orderPrefix+res.OrderID, marker, ttlSec).Int()
	if err != nil {
		return Reservation{}, err
	}
	if ok == 0 {
		return Reservation{Key: res.Key}, nil
	}
	return Reservation{Key: res.Key, Acquired: true, marker: marker}, nil
}

// Release 建单失败时释放占位，允许客户端用同一幂等键重试。
func (s *IdempotencyStore) Release(ctx context.Context, res Reservation) error {
	if !res.Acquired {
		return nil
	}
	_, err := s.rdb.Eval(ctx, luaReleaseIfMatch, []string{res.Key}, res.marker).Int()
	return err
}
