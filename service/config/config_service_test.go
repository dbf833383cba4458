/*
 * @module service/config/config_service_test
 * @description 配置服务单元测试
 * @architecture 测试层 - 内存数据库驱动
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 写入配置 -> 读取/回退 -> 验证默认值补齐与缓存行为
 * @rules 覆盖默认值回退、越界值回退与缓存失效
 * @dependencies testing, stretchr/testify, testutil
 */

package config

import (
	"testing"

	"donation-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfigService(t *testing.T) *ConfigService {
	t.Helper()
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)
	return NewConfigService(tdb.DB)
}

// TestSystemConfigRoundTrip 测试配置读写
func TestSystemConfigRoundTrip(t *testing.T) {
	s := newTestConfigService(t)

	t.Run("不存在的配置返回错误", func(t *testing.T) {
		_, err := s.GetSystemConfig("missing.key")
		assert.Error(t, err)
	})

	t.Run("写入后可读取", func(t *testing.T) {
		require.NoError(t, s.SetSystemConfig("custom.key", "nilai", "测试配置"))

		value, err := s.GetSystemConfig("custom.key")
		require.NoError(t, err)
		assert.Equal(t, "nilai", value)
	})

	t.Run("覆盖写入后缓存失效", func(t *testing.T) {
		require.NoError(t, s.SetSystemConfig("custom.key", "lama", ""))
		_, _ = s.GetSystemConfig("custom.key") // 预热缓存

		require.NoError(t, s.SetSystemConfig("custom.key", "baru", ""))
		value, err := s.GetSystemConfig("custom.key")
		require.NoError(t, err)
		assert.Equal(t, "baru", value)
	})
}

// TestGetAllSystemConfigs 测试缺失键以默认值补齐
func TestGetAllSystemConfigs(t *testing.T) {
	s := newTestConfigService(t)

	items, err := s.GetAllSystemConfigs()
	require.NoError(t, err)

	byKey := make(map[string]string)
	for _, item := range items {
		byKey[item.Key] = item.Value
	}
	assert.Equal(t, "0.8", byKey[ConfigKeyReviewNewRatioThreshold])
	assert.Equal(t, "0.8", byKey[ConfigKeyFuzzyTolerance])
	assert.Equal(t, "90", byKey[ConfigKeyHistoryRetentionDays])

	// 数据库中的显式值优先于默认值
	require.NoError(t, s.SetSystemConfig(ConfigKeyFuzzyTolerance, "0.95", ""))
	items, err = s.GetAllSystemConfigs()
	require.NoError(t, err)

	count := 0
	for _, item := range items {
		if item.Key == ConfigKeyFuzzyTolerance {
			count++
			assert.Equal(t, "0.95", item.Value)
		}
	}
	assert.Equal(t, 1, count)
}

// TestTypedConfigFallback 测试类型化读取的默认值回退
func TestTypedConfigFallback(t *testing.T) {
	s := newTestConfigService(t)

	t.Run("复核阈值", func(t *testing.T) {
		assert.Equal(t, DefaultReviewNewRatioThreshold, s.GetReviewNewRatioThreshold())

		require.NoError(t, s.SetSystemConfig(ConfigKeyReviewNewRatioThreshold, "0.6", ""))
		assert.Equal(t, 0.6, s.GetReviewNewRatioThreshold())

		// 越界与非数值回退默认值
		require.NoError(t, s.SetSystemConfig(ConfigKeyReviewNewRatioThreshold, "1.5", ""))
		assert.Equal(t, DefaultReviewNewRatioThreshold, s.GetReviewNewRatioThreshold())

		require.NoError(t, s.SetSystemConfig(ConfigKeyReviewNewRatioThreshold, "banyak", ""))
		assert.Equal(t, DefaultReviewNewRatioThreshold, s.GetReviewNewRatioThreshold())
	})

	t.Run("模糊容差", func(t *testing.T) {
		assert.Equal(t, DefaultFuzzyTolerance, s.GetFuzzyTolerance())

		require.NoError(t, s.SetSystemConfig(ConfigKeyFuzzyTolerance, "0.9", ""))
		assert.Equal(t, 0.9, s.GetFuzzyTolerance())

		require.NoError(t, s.SetSystemConfig(ConfigKeyFuzzyTolerance, "-0.1", ""))
		assert.Equal(t, DefaultFuzzyTolerance, s.GetFuzzyTolerance())
	})

	t.Run("历史保留天数", func(t *testing.T) {
		assert.Equal(t, DefaultHistoryRetentionDays, s.GetHistoryRetentionDays())

		require.NoError(t, s.SetSystemConfig(ConfigKeyHistoryRetentionDays, "30", ""))
		assert.Equal(t, 30, s.GetHistoryRetentionDays())

		require.NoError(t, s.SetSystemConfig(ConfigKeyHistoryRetentionDays, "0", ""))
		assert.Equal(t, DefaultHistoryRetentionDays, s.GetHistoryRetentionDays())
	})
}

// TestClearCache 测试缓存清除
func TestClearCache(t *testing.T) {
	s := newTestConfigService(t)

	require.NoError(t, s.SetSystemConfig("cache.key", "awal", ""))
	_, _ = s.GetSystemConfig("cache.key")

	// 绕过服务直接改库，缓存未失效时仍读到旧值
	require.NoError(t, s.db.Exec(
		"UPDATE system_configs SET value = ? WHERE key = ?", "berubah", "cache.key").Error)

	value, err := s.GetSystemConfig("cache.key")
	require.NoError(t, err)
	assert.Equal(t, "awal", value)

	s.ClearCache()
	value, err = s.GetSystemConfig("cache.key")
	require.NoError(t, err)
	assert.Equal(t, "berubah", value)
}
