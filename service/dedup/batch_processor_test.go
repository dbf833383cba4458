/*
 * @module service/dedup/batch_processor_test
 * @description 批处理器单元测试
 * @architecture 测试层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 构造批次 -> 处理 -> 验证分桶、统计与决议
 * @rules 覆盖同批内重复、策略决议、按行覆盖、合并语义与统计守恒
 * @dependencies testing, stretchr/testify
 */

package dedup

import (
	"context"
	"testing"
	"time"

	"donation-service/service/meta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertStatsConsistent 验证统计守恒：总行数 = 新增 + 已决议重复 + 待决议重复 + 错误
func assertStatsConsistent(t *testing.T, result *ProcessedBatchResult) {
	t.Helper()
	resolved := result.Stats.Skipped + result.Stats.Updated + result.Stats.Merged
	pending := result.Duplicates.Count() - resolved
	assert.Equal(t, result.TotalRecords,
		result.Stats.Added+resolved+pending+result.Stats.Errored)
}

// TestBatchProcessorInBatchDuplicates 测试同批内重复识别
func TestBatchProcessorInBatchDuplicates(t *testing.T) {
	processor := NewBatchProcessor()
	config, err := NewDetectionConfig(false, meta.DuplicateActionSkip, 0.8)
	require.NoError(t, err)

	rows := []*UploadRow{
		muzakkiRow(0, "Budi Santoso", "0811", "kambing", 2500000),
		muzakkiRow(1, "Budi Santoso", "0811", "kambing", 2500000),
	}

	result, err := processor.Process(context.Background(), meta.RecordKindMuzakki, rows, nil, config)
	require.NoError(t, err)

	// 第一行入库为新记录后成为语料，第二行命中同批重复
	assert.Equal(t, 1, result.Stats.Added)
	assert.Equal(t, 1, result.Stats.Skipped)
	assert.Len(t, result.Duplicates.Exact, 1)
	assert.Len(t, result.NewRecords, 1)
	assertStatsConsistent(t, result)
}

// TestBatchProcessorPromptKeepsRows 测试prompt策略下重复行留在分桶等待决议
func TestBatchProcessorPromptKeepsRows(t *testing.T) {
	processor := NewBatchProcessor()
	config := DefaultDetectionConfig()

	corpus := []*ExistingRecord{
		muzakkiRecord("id-1", "Budi Santoso", "0811", "kambing", 2500000),
	}
	rows := []*UploadRow{
		muzakkiRow(0, "Budi Santoso", "0899", "kambing", 2500000),
		muzakkiRow(1, "Ahmad Fauzi", "0822", "sapi", 9000000),
	}

	result, err := processor.Process(context.Background(), meta.RecordKindMuzakki, rows, corpus, config)
	require.NoError(t, err)

	// 重复行不进入新增列表，也不计入已决议统计
	assert.Equal(t, 1, result.Stats.Added)
	assert.Equal(t, 0, result.Stats.Skipped+result.Stats.Updated+result.Stats.Merged)
	assert.Equal(t, 1, result.PendingReviewCount())
	assert.Len(t, result.NewRecords, 1)
	assert.Equal(t, "added", result.NewRecords[0].Action)
	assertStatsConsistent(t, result)
}

// TestBatchProcessorRowActionOverride 测试按行覆盖默认策略
func TestBatchProcessorRowActionOverride(t *testing.T) {
	processor := NewBatchProcessor()

	corpus := []*ExistingRecord{
		muzakkiRecord("id-1", "Budi Santoso", "0811", "kambing", 2500000),
		muzakkiRecord("id-2", "Ahmad Fauzi", "0822", "sapi", 9000000),
	}
	rows := []*UploadRow{
		muzakkiRow(0, "Budi Santoso", "0899", "kambing", 2500000),
		muzakkiRow(1, "Ahmad Fauzi", "0833", "sapi", 9000000),
	}

	config, err := NewDetectionConfig(false, meta.DuplicateActionSkip, 0.8)
	require.NoError(t, err)
	config.RowActions = map[int]string{1: meta.DuplicateActionUpdate}

	result, err := processor.Process(context.Background(), meta.RecordKindMuzakki, rows, corpus, config)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Skipped)
	assert.Equal(t, 1, result.Stats.Updated)
	require.Len(t, result.NewRecords, 1)
	assert.Equal(t, meta.DuplicateActionUpdate, result.NewRecords[0].Action)
	assert.Equal(t, "id-2", result.NewRecords[0].ExistingID)
	assertStatsConsistent(t, result)
}

// TestBatchProcessorMergeSemantics 测试合并语义：非空覆盖、空值保留、时间戳更新
func TestBatchProcessorMergeSemantics(t *testing.T) {
	processor := NewBatchProcessor()
	fixedNow := time.Date(2026, 6, 7, 12, 0, 0, 0, time.UTC)
	processor.now = func() time.Time { return fixedNow }

	corpus := []*ExistingRecord{
		{
			ID: "id-1",
			Fields: map[string]interface{}{
				"nama_muzakki": "Budi Santoso",
				"no_telepon":   "0811",
				"jenis_hewan":  "kambing",
				"nilai_donasi": float64(2500000),
				"alamat":       "Jl. Merdeka No. 1",
			},
		},
	}
	rows := []*UploadRow{
		{
			Index: 0,
			Fields: map[string]interface{}{
				"nama_muzakki": "Budi Santoso",
				"no_telepon":   "0811",
				"jenis_hewan":  "",      // 空串不覆盖已有值
				"nilai_donasi": float64(0), // 数值0是有效值
				"alamat":       nil,     // nil不覆盖已有值
			},
		},
	}

	config, err := NewDetectionConfig(false, meta.DuplicateActionMerge, 0.8)
	require.NoError(t, err)

	result, err := processor.Process(context.Background(), meta.RecordKindMuzakki, rows, corpus, config)
	require.NoError(t, err)

	require.Equal(t, 1, result.Stats.Merged)
	require.Len(t, result.NewRecords, 1)

	merged := result.NewRecords[0].Fields
	assert.Equal(t, "kambing", merged["jenis_hewan"])
	assert.Equal(t, "Jl. Merdeka No. 1", merged["alamat"])
	assert.Equal(t, float64(0), merged["nilai_donasi"])
	assert.Equal(t, fixedNow.Format(time.RFC3339), merged["updated_at"])
	assert.Equal(t, "id-1", result.NewRecords[0].ExistingID)
}

// TestBatchProcessorRowErrorsDontStopBatch 测试单行错误不中断批处理
func TestBatchProcessorRowErrorsDontStopBatch(t *testing.T) {
	processor := NewBatchProcessor()
	config := DefaultDetectionConfig()

	rows := []*UploadRow{
		muzakkiRow(0, "", "0811", "kambing", 1000),          // 姓名缺失
		muzakkiRow(1, "Budi", "0811", "kambing", "invalid"), // 金额非法
		muzakkiRow(2, "Ahmad Fauzi", "0822", "sapi", 9000000),
	}

	result, err := processor.Process(context.Background(), meta.RecordKindMuzakki, rows, nil, config)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.Errored)
	assert.Equal(t, 1, result.Stats.Added)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 0, result.Errors[0].RowIndex)
	assert.Equal(t, 1, result.Errors[1].RowIndex)
	assert.Equal(t, meta.RowErrorSeverityError, result.Errors[0].Severity)
	assertStatsConsistent(t, result)
}

// TestBatchProcessorCategoryOrder 测试各类别保持输入顺序
func TestBatchProcessorCategoryOrder(t *testing.T) {
	processor := NewBatchProcessor()
	config, err := NewDetectionConfig(false, meta.DuplicateActionSkip, 0.8)
	require.NoError(t, err)

	corpus := []*ExistingRecord{
		muzakkiRecord("id-1", "Budi Santoso", "0811", "kambing", 2500000),
	}
	rows := []*UploadRow{
		muzakkiRow(0, "Dewi Lestari", "0833", "sapi", 1000000),
		muzakkiRow(1, "Budi Santoso", "0899", "kambing", 2500000),
		muzakkiRow(2, "Rudi Hartono", "0844", "domba", 2000000),
	}

	result, err := processor.Process(context.Background(), meta.RecordKindMuzakki, rows, corpus, config)
	require.NoError(t, err)

	require.Len(t, result.NewRecords, 2)
	assert.Equal(t, "Dewi Lestari", result.NewRecords[0].Fields["nama_muzakki"])
	assert.Equal(t, "Rudi Hartono", result.NewRecords[1].Fields["nama_muzakki"])
	assertStatsConsistent(t, result)
}

// TestBatchProcessorInvalidConfig 测试非法配置立即失败
func TestBatchProcessorInvalidConfig(t *testing.T) {
	processor := NewBatchProcessor()

	_, err := processor.Process(context.Background(), meta.RecordKindMuzakki, nil, nil,
		&DetectionConfig{Action: "explode", Tolerance: 0.8})
	assert.Error(t, err)

	_, err = processor.Process(context.Background(), "unknown_kind", nil, nil, DefaultDetectionConfig())
	assert.Error(t, err)
}

// TestBatchProcessorNilConfigDefaults 测试缺省配置为人工复核策略
func TestBatchProcessorNilConfigDefaults(t *testing.T) {
	processor := NewBatchProcessor()

	corpus := []*ExistingRecord{
		muzakkiRecord("id-1", "Budi Santoso", "0811", "kambing", 2500000),
	}
	rows := []*UploadRow{
		muzakkiRow(0, "Budi Santoso", "0899", "kambing", 2500000),
	}

	result, err := processor.Process(context.Background(), meta.RecordKindMuzakki, rows, corpus, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PendingReviewCount())
	assert.Empty(t, result.NewRecords)
}
