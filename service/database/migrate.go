/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新数据库表结构
 * @architecture 数据访问层 - 迁移管理
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 确保数据库结构与模型定义保持一致
 * @dependencies donation-service/service/models, gorm.io/gorm
 * @refs service/models/donation.go, service/models/upload.go
 */

package database

import (
	"log"
	"strconv"

	"donation-service/service/config"
	"donation-service/service/models"

	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 捐赠领域表
	err := db.AutoMigrate(
		&models.Muzakki{},
		&models.Distribusi{},
	)
	if err != nil {
		return err
	}

	// 上传队列相关表
	err = db.AutoMigrate(
		&models.UploadEntry{},
		&models.UploadHistory{},
		&models.UploadPartner{},
	)
	if err != nil {
		return err
	}

	// 事件管理相关表
	err = db.AutoMigrate(
		&models.SSEEvent{},
		&models.SSEConnection{},
	)
	if err != nil {
		return err
	}

	// 系统配置表
	err = db.AutoMigrate(
		&models.SystemConfig{},
	)
	if err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}

// InitializeData 初始化基础数据：写入缺失的默认策略配置
func InitializeData(db *gorm.DB) error {
	log.Println("开始初始化基础数据...")

	defaults := []models.SystemConfig{
		{
			Key:         config.ConfigKeyReviewNewRatioThreshold,
			Value:       strconv.FormatFloat(config.DefaultReviewNewRatioThreshold, 'f', -1, 64),
			Description: "新记录占比超过该值时跳过人工复核",
		},
		{
			Key:         config.ConfigKeyFuzzyTolerance,
			Value:       strconv.FormatFloat(config.DefaultFuzzyTolerance, 'f', -1, 64),
			Description: "模糊匹配计为重复的最低相似度",
		},
		{
			Key:         config.ConfigKeyHistoryRetentionDays,
			Value:       strconv.Itoa(config.DefaultHistoryRetentionDays),
			Description: "上传历史记录保留天数",
		},
	}

	for _, item := range defaults {
		item.Environment = "default"
		item.ID = item.Key + ":" + item.Environment

		var count int64
		db.Model(&models.SystemConfig{}).
			Where("key = ? AND environment = ?", item.Key, item.Environment).
			Count(&count)
		if count > 0 {
			continue
		}

		if err := db.Create(&item).Error; err != nil {
			log.Printf("初始化配置 %s 失败: %v", item.Key, err)
			return err
		}
	}

	log.Println("基础数据初始化完成")
	return nil
}
