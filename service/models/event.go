/*
 * @module service/models/event
 * @description 事件管理相关模型定义，包括SSE事件与数据库变更通知
 * @architecture 事件驱动架构 - 数据模型层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 事件生产 -> 事件分发 -> 客户端推送
 * @rules 上传队列的状态变化通过SSE推送给复核界面，替代轮询
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/event/event_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 上传管道SSE事件类型
const (
	EventTypeEntryStatusChanged = "entry_status_changed" // 队列条目状态变化
	EventTypeReviewRequired     = "review_required"      // 需要人工复核
	EventTypeBatchCompleted     = "batch_completed"      // 批处理完成
	EventTypeSystemNotification = "system_notification"  // 系统通知
)

// UploadEntryNotifyChannel 上传条目变更的postgres通知通道
const UploadEntryNotifyChannel = "upload_entry_changed"

// SSEEvent SSE事件模型
type SSEEvent struct {
	ID        string                 `gorm:"type:uuid;primary_key" json:"id"`
	EventType string                 `gorm:"not null" json:"event_type"`
	UserName  string                 `gorm:"not null;index" json:"user_name"` // 为空表示广播
	Data      map[string]interface{} `gorm:"type:jsonb;not null;serializer:json" json:"data"`
	CreatedAt time.Time              `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	Sent      bool                   `gorm:"not null;default:false" json:"sent"`
	SentAt    *time.Time             `json:"sent_at"`
}

// BeforeCreate 创建前钩子
func (s *SSEEvent) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (SSEEvent) TableName() string {
	return "sse_events"
}

// SSEConnection SSE连接记录模型
type SSEConnection struct {
	ID           string    `gorm:"type:uuid;primary_key" json:"id"`
	UserName     string    `gorm:"not null;index" json:"user_name"`
	ConnectionID string    `gorm:"not null;uniqueIndex" json:"connection_id"`
	ClientIP     string    `json:"client_ip"`
	ConnectedAt  time.Time `gorm:"not null" json:"connected_at"`
	LastPingAt   time.Time `json:"last_ping_at"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
}

// BeforeCreate 创建前钩子
func (c *SSEConnection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (SSEConnection) TableName() string {
	return "sse_connections"
}

// DBEventProcessor 数据库变更事件处理器接口
type DBEventProcessor interface {
	ProcessDBChangeEvent(changeData map[string]interface{}) error
	TableName() string
}
