/*
 * @module service/models/system_config
 * @description 系统配置模型，用于存储可调策略参数（复核阈值、历史保留天数等）
 * @architecture 数据模型层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 配置存储 -> 配置读取 -> 配置更新
 * @rules 配置按环境隔离，键在同一环境内唯一
 * @dependencies gorm.io/gorm
 * @refs service/config
 */

package models

import (
	"time"
)

// SystemConfig 系统配置模型
type SystemConfig struct {
	ID          string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	Key         string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_config_key_env" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Environment string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_config_key_env" json:"environment"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (SystemConfig) TableName() string {
	return "system_configs"
}

// SystemConfigItem 配置项视图，含默认值合并结果
type SystemConfigItem struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	ValueType   string `json:"value_type"`
}
