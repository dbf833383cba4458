/*
 * @module service/models/upload
 * @description 批量上传相关模型定义，包括上传队列条目、上传历史审计、合作机构凭证
 * @architecture 数据模型层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow pending -> uploading -> detecting_duplicates -> (reviewing_duplicates) -> processing -> completed/error
 * @rules 队列条目状态仅由上传队列协调器驱动，终态条目不再被处理
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/upload/queue_service.go, service/meta/upload.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadEntry 上传队列条目模型
type UploadEntry struct {
	ID         string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FileName   string `json:"file_name" gorm:"not null;size:255"`
	FileSize   int64  `json:"file_size" gorm:"default:0"`
	RecordKind string `json:"record_kind" gorm:"size:20;index"` // muzakki, distribusi，解析前可为空
	Source     string `json:"source" gorm:"size:20;default:'http'"` // http, mqtt
	UploadedBy string `json:"uploaded_by" gorm:"size:100"`

	// 原始文件内容，解析失败时用于排查与重试
	RawData []byte `json:"-" gorm:"type:bytea"`

	// 解析与处理配置（字符编码、转换脚本、检测容差等）
	Config JSONB `json:"config,omitempty" gorm:"type:jsonb"`

	// 状态信息
	Status       string `json:"status" gorm:"not null;default:'pending';index"`
	ErrorMessage string `json:"error_message,omitempty" gorm:"type:text"`

	// 处理结果摘要（批处理统计与重复分桶），复核界面据此渲染
	Result JSONB `json:"result,omitempty" gorm:"type:jsonb"`

	// 审计字段
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (UploadEntry) TableName() string {
	return "upload_entries"
}

// BeforeCreate 创建前钩子
func (e *UploadEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// UploadHistory 上传历史审计记录
type UploadHistory struct {
	ID         string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EntryID    string `json:"entry_id" gorm:"not null;type:varchar(36);index"`
	FileName   string `json:"file_name" gorm:"not null;size:255"`
	RecordKind string `json:"record_kind" gorm:"not null;size:20"`
	UploadedBy string `json:"uploaded_by" gorm:"size:100"`

	// 批处理统计
	TotalRecords   int `json:"total_records" gorm:"default:0"`
	AddedRecords   int `json:"added_records" gorm:"default:0"`
	SkippedRecords int `json:"skipped_records" gorm:"default:0"`
	UpdatedRecords int `json:"updated_records" gorm:"default:0"`
	MergedRecords  int `json:"merged_records" gorm:"default:0"`
	ErrorRecords   int `json:"error_records" gorm:"default:0"`

	// 重复分桶计数
	ExactDuplicates   int `json:"exact_duplicates" gorm:"default:0"`
	FuzzyDuplicates   int `json:"fuzzy_duplicates" gorm:"default:0"`
	PartialDuplicates int `json:"partial_duplicates" gorm:"default:0"`

	ReviewRequired bool  `json:"review_required" gorm:"default:false"`
	Details        JSONB `json:"details,omitempty" gorm:"type:jsonb"`

	// 行级错误明细（行号、原因、级别），供对账界面逐行展示
	RowErrors JSONBArray `json:"row_errors,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (UploadHistory) TableName() string {
	return "upload_histories"
}

// BeforeCreate 创建前钩子
func (h *UploadHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}

// UploadPartner 合作机构上传凭证模型
type UploadPartner struct {
	ID         string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name       string `json:"name" gorm:"not null;unique;size:255"`
	APIKeyHash string `json:"-" gorm:"not null;size:100"` // bcrypt哈希，不对外暴露
	KeyPrefix  string `json:"key_prefix" gorm:"not null;size:12;index"`

	// 默认上传配置（字符编码、行转换脚本等），随条目入队
	DefaultConfig JSONB `json:"default_config,omitempty" gorm:"type:jsonb"`

	IsEnabled bool      `json:"is_enabled" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (UploadPartner) TableName() string {
	return "upload_partners"
}

// BeforeCreate 创建前钩子
func (p *UploadPartner) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
