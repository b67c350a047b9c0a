package redis

import (
	"fmt"
	"strings"
)

// IdempotencyKey 客户端幂等键按捐款人邮箱隔离，映射到 order_id。
func IdempotencyKey(email, idemKey string) string {
	return fmt.Sprintf("donation:idem:%s:%s", strings.ToLower(email), idemKey)
}

// RateLimitKey 按路由分组 + 客户端 IP 的滑动窗口限流键。
func RateLimitKey(scope, clientIP string) string {
	return fmt.Sprintf("rate_limit:donation:%s:ip:%s", scope, clientIP)
}
