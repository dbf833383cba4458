/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 基于Redis的上传限流服务，按合作机构与全局两层限制上传频率
 * @architecture 工具层 - 提供分布式限流能力
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 检查限流规则 -> Redis计数 -> 判断是否超限
 * @rules 使用Redis INCR和EXPIRE实现固定窗口限流；Redis不可用时放行
 * @dependencies github.com/go-redis/redis/v8
 * @refs api/middleware/partner_auth.go, service/init.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// 上传限流默认规则，可通过环境变量覆盖
const (
	defaultPartnerWindowSeconds = 60
	defaultPartnerMaxUploads    = 10
	defaultGlobalWindowSeconds  = 60
	defaultGlobalMaxUploads     = 100
)

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed   bool   `json:"allowed"`    // 是否允许请求
	Limit     int    `json:"limit"`      // 限制数量
	Remaining int    `json:"remaining"`  // 剩余数量
	ResetAt   int64  `json:"reset_at"`   // 重置时间（Unix时间戳）
	LimitType string `json:"limit_type"` // 限流类型：global/partner
}

// RateLimitRule 限流规则
type RateLimitRule struct {
	Type        string // global/partner
	TargetID    string // 机构ID，全局时为空
	TimeWindow  int    // 时间窗口（秒）
	MaxRequests int    // 窗口内最大上传次数
}

// RedisRateLimiter Redis限流器
type RedisRateLimiter struct {
	client *redis.Client

	partnerWindow int
	partnerMax    int
	globalWindow  int
	globalMax     int
}

// NewRedisRateLimiter 创建Redis限流器
func NewRedisRateLimiter() (*RedisRateLimiter, error) {
	host := getEnvWithDefault("REDIS_HOST", "localhost")
	port := getEnvWithDefault("REDIS_PORT", "6379")
	password := os.Getenv("REDIS_PASSWORD")
	db := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		fmt.Sscanf(dbStr, "%d", &db)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis连接失败: %w", err)
	}

	limiter := &RedisRateLimiter{
		client:        client,
		partnerWindow: getEnvIntWithDefault("UPLOAD_RATE_PARTNER_WINDOW", defaultPartnerWindowSeconds),
		partnerMax:    getEnvIntWithDefault("UPLOAD_RATE_PARTNER_MAX", defaultPartnerMaxUploads),
		globalWindow:  getEnvIntWithDefault("UPLOAD_RATE_GLOBAL_WINDOW", defaultGlobalWindowSeconds),
		globalMax:     getEnvIntWithDefault("UPLOAD_RATE_GLOBAL_MAX", defaultGlobalMaxUploads),
	}

	slog.Info("Redis限流器初始化成功", "redis_host", host, "redis_port", port)
	return limiter, nil
}

// CheckUploadLimit 检查一次上传是否超限，先查机构限制再查全局限制
func (l *RedisRateLimiter) CheckUploadLimit(ctx context.Context, partnerID string) (*RateLimitResult, error) {
	rules := []RateLimitRule{
		{Type: "partner", TargetID: partnerID, TimeWindow: l.partnerWindow, MaxRequests: l.partnerMax},
		{Type: "global", TimeWindow: l.globalWindow, MaxRequests: l.globalMax},
	}

	for _, rule := range rules {
		result, err := l.checkRule(ctx, rule)
		if err != nil {
			return nil, err
		}
		if !result.Allowed {
			return result, nil
		}
	}

	return &RateLimitResult{Allowed: true}, nil
}

// checkRule 对单条规则执行固定窗口计数
func (l *RedisRateLimiter) checkRule(ctx context.Context, rule RateLimitRule) (*RateLimitResult, error) {
	key := l.buildKey(rule)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("限流计数失败: %w", err)
	}

	// 首次计数时设置窗口过期
	if count == 1 {
		if err := l.client.Expire(ctx, key, time.Duration(rule.TimeWindow)*time.Second).Err(); err != nil {
			return nil, fmt.Errorf("设置限流窗口失败: %w", err)
		}
	}

	remaining := rule.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitResult{
		Allowed:   count <= int64(rule.MaxRequests),
		Limit:     rule.MaxRequests,
		Remaining: remaining,
		ResetAt:   time.Now().Add(time.Duration(rule.TimeWindow) * time.Second).Unix(),
		LimitType: rule.Type,
	}, nil
}

// buildKey 构建限流计数键
func (l *RedisRateLimiter) buildKey(rule RateLimitRule) string {
	window := time.Now().Unix() / int64(rule.TimeWindow)
	if rule.Type == "global" {
		return fmt.Sprintf("upload_rate:global:%d", window)
	}
	return fmt.Sprintf("upload_rate:partner:%s:%d", rule.TargetID, window)
}

// Close 关闭Redis连接
func (l *RedisRateLimiter) Close() error {
	return l.client.Close()
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
