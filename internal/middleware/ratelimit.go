package middleware

import (
	"fmt"
	"time"

	"ngo_donation/internal/apperrors"
	"ngo_donation/internal/logger"
	rediskey "ngo_donation/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// luaRateLimit：Redis 滑动窗口限流 Lua 脚本（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间戳，ARGV[2]=窗口开始时间戳，ARGV[3]=窗口秒数，ARGV[4]=成员，ARGV[5]=上限
// 返回：当前窗口内的请求数（超限返回 -1）
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

-- 删除窗口外的旧记录
redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

-- 统计当前窗口内的请求数
local count = redis.call('ZCARD', key)

-- 添加当前请求（如果还没超限）
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// RedisRateLimit Redis 分布式限流（Lua 原子操作 + 按 scope/IP）。
// scope 区分路由分组，支付分组比通用 API 更严格。
func RedisRateLimit(rdb *rd.Client, scope string, limit int, window time.Duration, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rediskey.RateLimitKey(scope, c.ClientIP())

		now := time.Now()
		windowSec := int64(window.Seconds())
		windowStart := now.UnixMilli() - window.Milliseconds()
		member := fmt.Sprintf("%d-%s", now.UnixNano(), c.GetHeader(RequestIDHeader))

		// Lua 原子操作：删除旧记录 + 统计 + 添加 + 设置过期
		res, err := rdb.Eval(c.Request.Context(), luaRateLimit, []string{key},
			now.UnixMilli(), windowStart, windowSec, member, limit).Int()
		if err != nil {
			// Redis 出错时放行（降级策略）
			logger.CtxWithError(c.Request.Context(), "rate limit check failed, allowing request", err, "scope", scope)
			c.Next()
			return
		}

		if res < 0 {
			c.Header("Retry-After", fmt.Sprintf("%d", windowSec))
			appErr := apperrors.RateLimited(message)
			c.AbortWithStatusJSON(appErr.HTTPCode, gin.H{
				"success": false,
				"message": appErr.Message,
			})
			return
		}
		c.Next()
	}
}
