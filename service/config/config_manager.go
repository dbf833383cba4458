/*
 * @module service/config/config_manager
 * @description 配置管理器，基于数据库的键值配置读写，带内存缓存
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 配置读取 -> 缓存命中/数据库查询 -> 配置应用
 * @rules 配置按环境隔离；写入后清除对应缓存，读取失败时由调用方回退默认值
 * @dependencies donation-service/service/models, gorm.io/gorm
 * @refs service/config/config_service.go
 */

package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"donation-service/service/models"

	"gorm.io/gorm"
)

// ConfigManager 配置管理器
type ConfigManager struct {
	db          *gorm.DB
	environment string

	cacheMu     sync.RWMutex
	cache       map[string]cachedValue
	cacheExpiry time.Duration
}

// cachedValue 缓存的配置值
type cachedValue struct {
	value    string
	cachedAt time.Time
}

// NewConfigManager 创建配置管理器实例
func NewConfigManager(db *gorm.DB) *ConfigManager {
	environment := os.Getenv("APP_ENVIRONMENT")
	if environment == "" {
		environment = "default"
	}

	return &ConfigManager{
		db:          db,
		environment: environment,
		cache:       make(map[string]cachedValue),
		cacheExpiry: 5 * time.Minute,
	}
}

// GetConfig 读取配置值，优先走缓存
func (c *ConfigManager) GetConfig(key string) (string, error) {
	c.cacheMu.RLock()
	if cached, exists := c.cache[key]; exists && time.Since(cached.cachedAt) < c.cacheExpiry {
		c.cacheMu.RUnlock()
		return cached.value, nil
	}
	c.cacheMu.RUnlock()

	var record models.SystemConfig
	err := c.db.Where("key = ? AND environment = ?", key, c.environment).First(&record).Error
	if err != nil {
		return "", fmt.Errorf("配置不存在: %s", key)
	}

	c.cacheMu.Lock()
	c.cache[key] = cachedValue{value: record.Value, cachedAt: time.Now()}
	c.cacheMu.Unlock()

	return record.Value, nil
}

// SetConfig 写入配置值并清除缓存
func (c *ConfigManager) SetConfig(key, value, description string) error {
	record := models.SystemConfig{
		ID:          fmt.Sprintf("%s:%s", key, c.environment),
		Key:         key,
		Value:       value,
		Environment: c.environment,
		Description: description,
	}

	if err := c.db.Save(&record).Error; err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}

	c.cacheMu.Lock()
	delete(c.cache, key)
	c.cacheMu.Unlock()

	return nil
}

// ClearCache 清除全部配置缓存
func (c *ConfigManager) ClearCache() {
	c.cacheMu.Lock()
	c.cache = make(map[string]cachedValue)
	c.cacheMu.Unlock()
}

// Environment 返回当前配置环境
func (c *ConfigManager) Environment() string {
	return c.environment
}
