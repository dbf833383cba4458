/*
 * @module service/dedup/batch_processor
 * @description 批处理器，对整批上传行执行重复检测并按策略决议，聚合新增、重复分桶与错误
 * @architecture 管道模式 - 逐行分类与决议
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 逐行检测 -> 分桶 -> 策略决议 -> 统计聚合
 * @rules 单行失败不中断批处理；被接受的行加入工作语料，使同批内重复也能命中；各类别保持输入顺序
 * @dependencies context, time
 * @refs detector.go, types.go
 */

package dedup

import (
	"context"
	"fmt"
	"time"

	"donation-service/service/meta"
)

// BatchProcessor 批处理器
type BatchProcessor struct {
	now func() time.Time
}

// NewBatchProcessor 创建批处理器
func NewBatchProcessor() *BatchProcessor {
	return &BatchProcessor{now: time.Now}
}

// Process 对整批上传行执行重复检测与决议
func (p *BatchProcessor) Process(ctx context.Context, kind string, rows []*UploadRow,
	corpus []*ExistingRecord, config *DetectionConfig) (*ProcessedBatchResult, error) {

	if config == nil {
		config = DefaultDetectionConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("检测配置非法: %w", err)
	}

	detector, err := DetectorForKind(kind)
	if err != nil {
		return nil, err
	}

	result := &ProcessedBatchResult{
		RecordKind:   kind,
		TotalRecords: len(rows),
	}

	// 工作语料：已有记录加上本批已接受的行，保证同批内重复能被识别
	working := make([]*ExistingRecord, len(corpus))
	copy(working, corpus)

	for _, row := range rows {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		match, err := detector.Detect(row, working, config)
		if err != nil {
			result.Errors = append(result.Errors, RowError{
				RowIndex: row.Index,
				Raw:      row.Fields,
				Message:  err.Error(),
				Severity: meta.RowErrorSeverityError,
			})
			result.Stats.Errored++
			continue
		}

		if !match.IsDuplicate {
			result.NewRecords = append(result.NewRecords, &ResolvedRecord{
				Fields: row.Fields,
				Action: "added",
			})
			result.Stats.Added++
			working = append(working, &ExistingRecord{Fields: row.Fields})
			continue
		}

		// 重复记录先进入对应分桶，再按生效动作决议
		pair := DuplicatePair{Row: row, Match: match}
		switch match.MatchType {
		case meta.MatchTypeExact:
			result.Duplicates.Exact = append(result.Duplicates.Exact, pair)
		case meta.MatchTypeFuzzy:
			result.Duplicates.Fuzzy = append(result.Duplicates.Fuzzy, pair)
		case meta.MatchTypePartial:
			result.Duplicates.Partial = append(result.Duplicates.Partial, pair)
		}

		switch config.ActionForRow(row.Index) {
		case meta.DuplicateActionPrompt:
			// 留在分桶中等待人工决议，不进入新增列表

		case meta.DuplicateActionSkip:
			result.Stats.Skipped++

		case meta.DuplicateActionUpdate:
			resolved := &ResolvedRecord{
				Fields: row.Fields,
				Action: meta.DuplicateActionUpdate,
			}
			if match.ExistingRecord != nil {
				resolved.ExistingID = match.ExistingRecord.ID
			}
			result.NewRecords = append(result.NewRecords, resolved)
			result.Stats.Updated++
			working = append(working, &ExistingRecord{Fields: row.Fields})

		case meta.DuplicateActionMerge:
			merged := p.mergeRecords(match.ExistingRecord, row)
			resolved := &ResolvedRecord{
				Fields: merged,
				Action: meta.DuplicateActionMerge,
			}
			if match.ExistingRecord != nil {
				resolved.ExistingID = match.ExistingRecord.ID
			}
			result.NewRecords = append(result.NewRecords, resolved)
			result.Stats.Merged++
			working = append(working, &ExistingRecord{Fields: merged})
		}
	}

	return result, nil
}

// mergeRecords 以已有记录为基础，叠加新行的非空字段，并加盖新的修改时间戳。
// 空字符串与nil不覆盖已有值，数值0视为有效值
func (p *BatchProcessor) mergeRecords(existing *ExistingRecord, row *UploadRow) map[string]interface{} {
	merged := make(map[string]interface{})
	if existing != nil {
		for k, v := range existing.Fields {
			merged[k] = v
		}
	}

	for k, v := range row.Fields {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		merged[k] = v
	}

	merged["updated_at"] = p.now().Format(time.RFC3339)
	return merged
}
