/*
 * @module service/dedup/types
 * @description 重复检测共享类型定义，包括检测配置、匹配结果、批处理结果与统计
 * @architecture 数据模型层 - 检测管道共享结构
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 行分类 -> 重复分桶 -> 决议统计
 * @rules 检测配置在构造时完成校验，非法容差或动作不允许进入批处理
 * @dependencies donation-service/service/meta
 * @refs batch_processor.go, detector.go
 */

package dedup

import (
	"fmt"

	"donation-service/service/meta"
)

// DetectionConfig 重复检测策略配置
type DetectionConfig struct {
	StrictMode bool    `json:"strict_mode"` // 严格模式下完全禁用模糊匹配
	Action     string  `json:"action"`      // 默认处理动作：skip, update, merge, prompt
	Tolerance  float64 `json:"tolerance"`   // 模糊匹配计为重复的最低置信度

	// 复核决策的按行动作覆盖，键为行号；覆盖值必须是终局动作
	RowActions map[int]string `json:"row_actions,omitempty"`
}

// NewDetectionConfig 创建检测配置，非法参数立即失败而不是在批处理中途暴露
func NewDetectionConfig(strictMode bool, action string, tolerance float64) (*DetectionConfig, error) {
	if !meta.IsValidDuplicateAction(action) {
		return nil, fmt.Errorf("无效的重复处理动作: %s", action)
	}
	if tolerance < 0 || tolerance > 1 {
		return nil, fmt.Errorf("容差必须在[0,1]范围内: %f", tolerance)
	}

	return &DetectionConfig{
		StrictMode: strictMode,
		Action:     action,
		Tolerance:  tolerance,
	}, nil
}

// DefaultDetectionConfig 默认检测配置：容差0.8，重复交由人工复核
func DefaultDetectionConfig() *DetectionConfig {
	return &DetectionConfig{
		StrictMode: false,
		Action:     meta.DuplicateActionPrompt,
		Tolerance:  0.8,
	}
}

// ActionForRow 返回某一行的生效动作，按行覆盖优先于默认动作
func (c *DetectionConfig) ActionForRow(rowIndex int) string {
	if action, exists := c.RowActions[rowIndex]; exists {
		return action
	}
	return c.Action
}

// Validate 校验配置合法性
func (c *DetectionConfig) Validate() error {
	if !meta.IsValidDuplicateAction(c.Action) {
		return fmt.Errorf("无效的重复处理动作: %s", c.Action)
	}
	if c.Tolerance < 0 || c.Tolerance > 1 {
		return fmt.Errorf("容差必须在[0,1]范围内: %f", c.Tolerance)
	}
	for rowIndex, action := range c.RowActions {
		if !meta.IsResolvedDuplicateAction(action) {
			return fmt.Errorf("第%d行的覆盖动作必须是终局动作: %s", rowIndex, action)
		}
	}
	return nil
}

// UploadRow 待检测的上传行，字段由表头命名
type UploadRow struct {
	Index  int                    `json:"index"` // 在上传文件中的行号（从0计）
	Fields map[string]interface{} `json:"fields"`
}

// ExistingRecord 已入库记录的检测视图
type ExistingRecord struct {
	ID     string                 `json:"id"` // 持久化ID，同批次内暂未落库的记录为空
	Fields map[string]interface{} `json:"fields"`
}

// MatchResult 单条记录的重复检测结果
type MatchResult struct {
	IsDuplicate     bool            `json:"is_duplicate"`
	MatchType       string          `json:"match_type,omitempty"` // exact, fuzzy, partial
	MatchingFields  []string        `json:"matching_fields,omitempty"`
	Confidence      float64         `json:"confidence"`
	ExistingRecord  *ExistingRecord `json:"existing_record,omitempty"`
	SuggestedAction string          `json:"suggested_action,omitempty"` // skip, update, merge, prompt
}

// noMatch 非重复结果，置信度为0且无匹配字段
func noMatch() *MatchResult {
	return &MatchResult{IsDuplicate: false, Confidence: 0}
}

// RowError 行级错误，单行失败不会中断批处理
type RowError struct {
	RowIndex int                    `json:"row_index"`
	Raw      map[string]interface{} `json:"raw,omitempty"`
	Message  string                 `json:"message"`
	Severity string                 `json:"severity"`
}

// DuplicatePair 重复记录对，等待决议或已按策略决议
type DuplicatePair struct {
	Row   *UploadRow   `json:"row"`
	Match *MatchResult `json:"match"`
}

// DuplicateBuckets 按匹配类型分桶的重复记录，桶内保持输入顺序
type DuplicateBuckets struct {
	Exact   []DuplicatePair `json:"exact"`
	Fuzzy   []DuplicatePair `json:"fuzzy"`
	Partial []DuplicatePair `json:"partial"`
}

// Count 重复记录总数
func (b *DuplicateBuckets) Count() int {
	return len(b.Exact) + len(b.Fuzzy) + len(b.Partial)
}

// BatchStats 批处理统计计数
type BatchStats struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Updated int `json:"updated"`
	Merged  int `json:"merged"`
	Errored int `json:"errored"`
}

// ResolvedRecord 已决议、可落库的记录
type ResolvedRecord struct {
	Fields     map[string]interface{} `json:"fields"`
	ExistingID string                 `json:"existing_id,omitempty"` // 非空表示覆盖/合并已有记录
	Action     string                 `json:"action"`                // added, update, merge
}

// ProcessedBatchResult 一次批处理的聚合结果
type ProcessedBatchResult struct {
	RecordKind   string            `json:"record_kind"`
	TotalRecords int               `json:"total_records"`
	NewRecords   []*ResolvedRecord `json:"new_records"`
	Duplicates   DuplicateBuckets  `json:"duplicates"`
	Stats        BatchStats        `json:"stats"`
	Errors       []RowError        `json:"errors"`
}

// ClassifiedCount 完成分类的行数（不含行级错误）
func (r *ProcessedBatchResult) ClassifiedCount() int {
	return r.TotalRecords - len(r.Errors)
}

// PendingReviewCount 仍停留在重复分桶、等待决议的行数
func (r *ProcessedBatchResult) PendingReviewCount() int {
	return r.Duplicates.Count()
}

// Summary 生成可序列化的结果摘要，供队列条目持久化与复核界面渲染
func (r *ProcessedBatchResult) Summary() map[string]interface{} {
	return map[string]interface{}{
		"record_kind":        r.RecordKind,
		"total_records":      r.TotalRecords,
		"new_records":        len(r.NewRecords),
		"exact_duplicates":   len(r.Duplicates.Exact),
		"fuzzy_duplicates":   len(r.Duplicates.Fuzzy),
		"partial_duplicates": len(r.Duplicates.Partial),
		"errors":             len(r.Errors),
		"stats":              r.Stats,
	}
}
