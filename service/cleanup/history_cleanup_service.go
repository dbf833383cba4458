/*
 * @module service/cleanup/history_cleanup_service
 * @description 历史清理服务，负责定期清理过期的上传历史与SSE事件记录
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 定时触发 -> 读取配置 -> 执行清理 -> 记录结果
 * @rules 确保清理不影响系统正常运行；仅删除终态条目的原始文件内容
 * @dependencies donation-service/service/config, gorm.io/gorm, github.com/robfig/cron/v3
 * @refs service/config
 */

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"donation-service/service/config"
	"donation-service/service/meta"
	"donation-service/service/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// HistoryCleanupService 上传历史清理服务
type HistoryCleanupService struct {
	db            *gorm.DB
	configService *config.ConfigService
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
}

// NewHistoryCleanupService 创建历史清理服务实例
func NewHistoryCleanupService(db *gorm.DB, configService *config.ConfigService) *HistoryCleanupService {
	ctx, cancel := context.WithCancel(context.Background())

	return &HistoryCleanupService{
		db:            db,
		configService: configService,
		cron:          cron.New(cron.WithSeconds()),
		ctx:           ctx,
		cancel:        cancel,
		started:       false,
	}
}

// CleanupExpired 清理所有过期数据
func (s *HistoryCleanupService) CleanupExpired(ctx context.Context) error {
	slog.Info("开始清理过期上传数据")
	startTime := time.Now()

	retentionDays := s.configService.GetHistoryRetentionDays()

	historiesDeleted, err := s.CleanupUploadHistories(ctx, retentionDays)
	if err != nil {
		slog.Error("清理上传历史失败", "error", err)
	} else {
		slog.Info("清理上传历史完成", "deleted_count", historiesDeleted, "retention_days", retentionDays)
	}

	entriesDeleted, err := s.CleanupTerminalEntries(ctx, retentionDays)
	if err != nil {
		slog.Error("清理终态上传条目失败", "error", err)
	} else {
		slog.Info("清理终态上传条目完成", "deleted_count", entriesDeleted, "retention_days", retentionDays)
	}

	rawDataCleared, err := s.ClearCompletedRawData(ctx)
	if err != nil {
		slog.Error("清空已完成条目的原始内容失败", "error", err)
	} else {
		slog.Info("清空已完成条目的原始内容完成", "cleared_count", rawDataCleared)
	}

	eventsDeleted, err := s.CleanupSSEEvents(ctx, retentionDays)
	if err != nil {
		slog.Error("清理SSE事件失败", "error", err)
	} else {
		slog.Info("清理SSE事件完成", "deleted_count", eventsDeleted, "retention_days", retentionDays)
	}

	duration := time.Since(startTime)
	slog.Info("过期数据清理完成",
		"histories_deleted", historiesDeleted,
		"entries_deleted", entriesDeleted,
		"events_deleted", eventsDeleted,
		"duration_ms", duration.Milliseconds())

	return nil
}

// CleanupUploadHistories 清理过期上传历史
func (s *HistoryCleanupService) CleanupUploadHistories(ctx context.Context, retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.Where("created_at < ?", cutoffDate).Delete(&models.UploadHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("删除上传历史失败: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// CleanupTerminalEntries 清理过期的终态上传条目，处理中的条目永不删除
func (s *HistoryCleanupService) CleanupTerminalEntries(ctx context.Context, retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.Where("status IN ? AND created_at < ?",
		[]string{meta.EntryStatusCompleted, meta.EntryStatusError}, cutoffDate).
		Delete(&models.UploadEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("删除终态上传条目失败: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// ClearCompletedRawData 清空已完成条目的原始文件内容，保留条目摘要
func (s *HistoryCleanupService) ClearCompletedRawData(ctx context.Context) (int64, error) {
	result := s.db.Model(&models.UploadEntry{}).
		Where("status = ? AND raw_data IS NOT NULL", meta.EntryStatusCompleted).
		Update("raw_data", nil)
	if result.Error != nil {
		return 0, fmt.Errorf("清空原始内容失败: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// CleanupSSEEvents 清理过期SSE事件
func (s *HistoryCleanupService) CleanupSSEEvents(ctx context.Context, retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.Where("created_at < ?", cutoffDate).Delete(&models.SSEEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("删除SSE事件失败: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// StartScheduledCleanup 启动定时清理任务
func (s *HistoryCleanupService) StartScheduledCleanup() error {
	if s.started {
		return fmt.Errorf("历史清理调度器已经启动")
	}

	slog.Info("启动历史清理调度器")

	// 每天凌晨2点执行清理任务
	// Cron表达式：秒 分 时 日 月 周
	_, err := s.cron.AddFunc("0 0 2 * * *", func() {
		slog.Info("开始执行定时历史清理任务")

		if err := s.CleanupExpired(s.ctx); err != nil {
			slog.Error("定时历史清理任务失败", "error", err)
		}
	})

	if err != nil {
		return fmt.Errorf("添加定时任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true

	slog.Info("历史清理调度器启动成功，将于每天凌晨2点执行清理任务")

	// 启动时立即执行一次清理
	go func() {
		slog.Info("执行首次历史清理")
		if err := s.CleanupExpired(s.ctx); err != nil {
			slog.Error("首次历史清理失败", "error", err)
		}
	}()

	return nil
}

// StopScheduledCleanup 停止定时清理任务
func (s *HistoryCleanupService) StopScheduledCleanup() {
	if !s.started {
		return
	}

	slog.Info("停止历史清理调度器")

	s.cancel()

	if s.cron != nil {
		s.cron.Stop()
	}

	s.started = false

	slog.Info("历史清理调度器已停止")
}
