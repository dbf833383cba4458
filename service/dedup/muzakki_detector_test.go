/*
 * @module service/dedup/muzakki_detector_test
 * @description 捐赠人记录重复检测器单元测试
 * @architecture 测试层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 构造语料 -> 检测 -> 验证匹配类型与置信度
 * @rules 覆盖三级规则的命中顺序、容差边界与严格模式
 * @dependencies testing, stretchr/testify
 */

package dedup

import (
	"testing"

	"donation-service/service/meta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func muzakkiRow(index int, nama, telepon, jenis string, nilai interface{}) *UploadRow {
	return &UploadRow{
		Index: index,
		Fields: map[string]interface{}{
			"nama_muzakki": nama,
			"no_telepon":   telepon,
			"jenis_hewan":  jenis,
			"nilai_donasi": nilai,
		},
	}
}

func muzakkiRecord(id, nama, telepon, jenis string, nilai float64) *ExistingRecord {
	return &ExistingRecord{
		ID: id,
		Fields: map[string]interface{}{
			"nama_muzakki": nama,
			"no_telepon":   telepon,
			"jenis_hewan":  jenis,
			"nilai_donasi": nilai,
		},
	}
}

// TestMuzakkiDetectorExactMatch 测试主精确规则：姓名+牲畜类型+金额
func TestMuzakkiDetectorExactMatch(t *testing.T) {
	detector := NewMuzakkiDetector()
	config := DefaultDetectionConfig()

	corpus := []*ExistingRecord{
		muzakkiRecord("id-1", "Budi Santoso", "0811111111", "kambing", 2500000),
	}

	t.Run("全等字段命中，置信度1.0建议跳过", func(t *testing.T) {
		row := muzakkiRow(0, "budi santoso", "0899999999", "Kambing", 2500000)

		match, err := detector.Detect(row, corpus, config)
		require.NoError(t, err)

		assert.True(t, match.IsDuplicate)
		assert.Equal(t, meta.MatchTypeExact, match.MatchType)
		assert.Equal(t, 1.0, match.Confidence)
		assert.Equal(t, meta.DuplicateActionSkip, match.SuggestedAction)
		assert.Equal(t, "id-1", match.ExistingRecord.ID)
		assert.Equal(t, []string{"nama_muzakki", "jenis_hewan", "nilai_donasi"}, match.MatchingFields)
	})

	t.Run("金额不同不命中主规则", func(t *testing.T) {
		row := muzakkiRow(0, "Budi Santoso", "", "kambing", 3000000)

		match, err := detector.Detect(row, corpus, config)
		require.NoError(t, err)
		assert.NotEqual(t, 1.0, match.Confidence)
	})

	t.Run("金额字符串形式也能比较", func(t *testing.T) {
		row := muzakkiRow(0, "Budi Santoso", "", "kambing", "2500000")

		match, err := detector.Detect(row, corpus, config)
		require.NoError(t, err)
		assert.True(t, match.IsDuplicate)
		assert.Equal(t, 1.0, match.Confidence)
	})
}

// TestMuzakkiDetectorPhoneMatch 测试次级精确规则：姓名+电话
func TestMuzakkiDetectorPhoneMatch(t *testing.T) {
	detector := NewMuzakkiDetector()
	config := DefaultDetectionConfig()

	corpus := []*ExistingRecord{
		muzakkiRecord("id-1", "Budi Santoso", "0812-3456-7890", "kambing", 2500000),
	}

	t.Run("电话格式差异归一化后命中，置信度0.9建议合并", func(t *testing.T) {
		row := muzakkiRow(0, "Budi Santoso", "+62 812 3456 7890", "sapi", 9000000)
		// 规则1因jenis与金额不同未命中，落入电话规则
		row.Fields["no_telepon"] = "081234567890"

		match, err := detector.Detect(row, corpus, config)
		require.NoError(t, err)

		assert.True(t, match.IsDuplicate)
		assert.Equal(t, meta.MatchTypeExact, match.MatchType)
		assert.Equal(t, 0.9, match.Confidence)
		assert.Equal(t, meta.DuplicateActionMerge, match.SuggestedAction)
		assert.Equal(t, []string{"nama_muzakki", "no_telepon"}, match.MatchingFields)
	})

	t.Run("双方电话为空不触发电话规则", func(t *testing.T) {
		localCorpus := []*ExistingRecord{
			muzakkiRecord("id-2", "Ahmad Fauzi", "", "sapi", 1000000),
		}
		row := muzakkiRow(0, "Ahmad Fauzi", "", "kambing", 2000000)

		match, err := detector.Detect(row, localCorpus, &DetectionConfig{Action: meta.DuplicateActionPrompt, Tolerance: 0.8, StrictMode: true})
		require.NoError(t, err)
		assert.False(t, match.IsDuplicate)
	})
}

// TestMuzakkiDetectorFuzzyMatch 测试姓名模糊规则
func TestMuzakkiDetectorFuzzyMatch(t *testing.T) {
	detector := NewMuzakkiDetector()

	corpus := []*ExistingRecord{
		muzakkiRecord("id-1", "test duplikat 1", "0811111111", "kambing", 2500000),
	}

	t.Run("相似度超过容差计为模糊重复", func(t *testing.T) {
		config := DefaultDetectionConfig()
		row := muzakkiRow(0, "test duplikat1", "0822222222", "sapi", 1000000)

		match, err := detector.Detect(row, corpus, config)
		require.NoError(t, err)

		assert.True(t, match.IsDuplicate)
		assert.Equal(t, meta.MatchTypeFuzzy, match.MatchType)
		assert.InDelta(t, 1.0-1.0/15.0, match.Confidence, 1e-9)
		assert.Equal(t, meta.DuplicateActionPrompt, match.SuggestedAction)
	})

	t.Run("恰好等于容差也算重复", func(t *testing.T) {
		config, err := NewDetectionConfig(false, meta.DuplicateActionPrompt, 1.0-1.0/15.0)
		require.NoError(t, err)

		row := muzakkiRow(0, "test duplikat1", "", "", 0)
		match, err := detector.Detect(row, corpus, config)
		require.NoError(t, err)
		assert.True(t, match.IsDuplicate)
	})

	t.Run("低于容差不算重复", func(t *testing.T) {
		config, err := NewDetectionConfig(false, meta.DuplicateActionPrompt, 0.95)
		require.NoError(t, err)

		row := muzakkiRow(0, "test duplikat1", "", "", 0)
		match, err := detector.Detect(row, corpus, config)
		require.NoError(t, err)
		assert.False(t, match.IsDuplicate)
	})

	t.Run("严格模式禁用模糊匹配", func(t *testing.T) {
		config, err := NewDetectionConfig(true, meta.DuplicateActionPrompt, 0.8)
		require.NoError(t, err)

		row := muzakkiRow(0, "test duplikat1", "", "", 0)
		match, err := detector.Detect(row, corpus, config)
		require.NoError(t, err)
		assert.False(t, match.IsDuplicate)
	})
}

// TestMuzakkiDetectorRowErrors 测试关键字段缺失的行级错误
func TestMuzakkiDetectorRowErrors(t *testing.T) {
	detector := NewMuzakkiDetector()
	config := DefaultDetectionConfig()

	t.Run("姓名缺失返回错误", func(t *testing.T) {
		row := muzakkiRow(0, "  ", "0811", "kambing", 1000)
		_, err := detector.Detect(row, nil, config)
		assert.Error(t, err)
	})

	t.Run("金额非法返回错误", func(t *testing.T) {
		row := muzakkiRow(0, "Budi", "0811", "kambing", "bukan angka")
		_, err := detector.Detect(row, nil, config)
		assert.Error(t, err)
	})

	t.Run("库中脏数据被跳过不阻断检测", func(t *testing.T) {
		corpus := []*ExistingRecord{
			{ID: "bad", Fields: map[string]interface{}{"nama_muzakki": ""}},
			muzakkiRecord("good", "Budi", "0811", "kambing", 1000),
		}
		row := muzakkiRow(0, "Budi", "", "kambing", 1000)

		match, err := detector.Detect(row, corpus, config)
		require.NoError(t, err)
		assert.True(t, match.IsDuplicate)
		assert.Equal(t, "good", match.ExistingRecord.ID)
	})
}
