/*
 * @module service/config/config_service
 * @description 配置服务，提供业务层的配置管理功能：复核阈值、模糊容差、历史保留天数
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 服务调用 -> 配置管理器 -> 数据库/默认值
 * @rules 配置缺失或非法时静默回退默认值，不阻断上传管道
 * @dependencies donation-service/service/models, gorm.io/gorm
 * @refs service/config/config_manager.go
 */

package config

import (
	"fmt"
	"strconv"

	"donation-service/service/models"

	"gorm.io/gorm"
)

// 系统配置键
const (
	// ConfigKeyReviewNewRatioThreshold 跳过人工复核的新记录占比阈值
	ConfigKeyReviewNewRatioThreshold = "upload.review_new_ratio_threshold"
	// ConfigKeyFuzzyTolerance 模糊匹配默认容差
	ConfigKeyFuzzyTolerance = "upload.fuzzy_tolerance"
	// ConfigKeyHistoryRetentionDays 上传历史保留天数
	ConfigKeyHistoryRetentionDays = "upload.history_retention_days"
)

// 配置默认值
const (
	DefaultReviewNewRatioThreshold = 0.8
	DefaultFuzzyTolerance          = 0.8
	DefaultHistoryRetentionDays    = 90
)

// ConfigService 配置服务
type ConfigService struct {
	db      *gorm.DB
	manager *ConfigManager
}

// NewConfigService 创建配置服务实例
func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{
		db:      db,
		manager: NewConfigManager(db),
	}
}

// GetSystemConfig 获取系统配置
func (s *ConfigService) GetSystemConfig(key string) (string, error) {
	return s.manager.GetConfig(key)
}

// SetSystemConfig 设置系统配置
func (s *ConfigService) SetSystemConfig(key, value, description string) error {
	return s.manager.SetConfig(key, value, description)
}

// GetAllSystemConfigs 获取所有系统配置，数据库中不存在的键以默认值补齐
func (s *ConfigService) GetAllSystemConfigs() ([]models.SystemConfigItem, error) {
	var configs []models.SystemConfig
	err := s.db.Where("environment = ?", s.manager.Environment()).Find(&configs).Error
	if err != nil {
		return nil, fmt.Errorf("查询配置失败: %w", err)
	}

	items := make([]models.SystemConfigItem, 0, len(configs))
	existingKeys := make(map[string]bool)
	for _, config := range configs {
		items = append(items, models.SystemConfigItem{
			Key:         config.Key,
			Value:       config.Value,
			Description: config.Description,
			ValueType:   "string",
		})
		existingKeys[config.Key] = true
	}

	if !existingKeys[ConfigKeyReviewNewRatioThreshold] {
		items = append(items, models.SystemConfigItem{
			Key:         ConfigKeyReviewNewRatioThreshold,
			Value:       strconv.FormatFloat(DefaultReviewNewRatioThreshold, 'f', -1, 64),
			Description: "新记录占比超过该值时跳过人工复核",
			ValueType:   "float",
		})
	}

	if !existingKeys[ConfigKeyFuzzyTolerance] {
		items = append(items, models.SystemConfigItem{
			Key:         ConfigKeyFuzzyTolerance,
			Value:       strconv.FormatFloat(DefaultFuzzyTolerance, 'f', -1, 64),
			Description: "模糊匹配计为重复的最低相似度",
			ValueType:   "float",
		})
	}

	if !existingKeys[ConfigKeyHistoryRetentionDays] {
		items = append(items, models.SystemConfigItem{
			Key:         ConfigKeyHistoryRetentionDays,
			Value:       strconv.Itoa(DefaultHistoryRetentionDays),
			Description: "上传历史记录保留天数",
			ValueType:   "int",
		})
	}

	return items, nil
}

// GetReviewNewRatioThreshold 获取跳过复核的新记录占比阈值
func (s *ConfigService) GetReviewNewRatioThreshold() float64 {
	valueStr, err := s.manager.GetConfig(ConfigKeyReviewNewRatioThreshold)
	if err != nil {
		return DefaultReviewNewRatioThreshold
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil || value < 0 || value > 1 {
		return DefaultReviewNewRatioThreshold
	}
	return value
}

// GetFuzzyTolerance 获取模糊匹配默认容差
func (s *ConfigService) GetFuzzyTolerance() float64 {
	valueStr, err := s.manager.GetConfig(ConfigKeyFuzzyTolerance)
	if err != nil {
		return DefaultFuzzyTolerance
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil || value < 0 || value > 1 {
		return DefaultFuzzyTolerance
	}
	return value
}

// GetHistoryRetentionDays 获取上传历史保留天数
func (s *ConfigService) GetHistoryRetentionDays() int {
	valueStr, err := s.manager.GetConfig(ConfigKeyHistoryRetentionDays)
	if err != nil {
		return DefaultHistoryRetentionDays
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return DefaultHistoryRetentionDays
	}
	return value
}

// ClearCache 清除配置缓存
func (s *ConfigService) ClearCache() {
	s.manager.ClearCache()
}
