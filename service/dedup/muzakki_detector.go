/*
 * @module service/dedup/muzakki_detector
 * @description 捐赠人记录重复检测器：主精确规则、次级精确规则（电话）、姓名模糊规则
 * @architecture 策略模式 - 捐赠人记录变体
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 主精确匹配 -> 次级精确匹配 -> 模糊匹配 -> 判定非重复
 * @rules 规则顺序固定不可调换，主精确命中置信度1.0，次级精确0.9，模糊取最高相似度
 * @dependencies github.com/spf13/cast
 * @refs detector.go, similarity.go
 */

package dedup

import (
	"donation-service/service/meta"

	"github.com/spf13/cast"
)

// MuzakkiDetector 捐赠人记录重复检测器
type MuzakkiDetector struct{}

// NewMuzakkiDetector 创建捐赠人检测器
func NewMuzakkiDetector() *MuzakkiDetector {
	return &MuzakkiDetector{}
}

// RecordKind 返回记录类型
func (d *MuzakkiDetector) RecordKind() string {
	return meta.RecordKindMuzakki
}

// Detect 按固定优先级比较一条捐赠人记录与已有记录集
func (d *MuzakkiDetector) Detect(row *UploadRow, corpus []*ExistingRecord, config *DetectionConfig) (*MatchResult, error) {
	key, err := extractMuzakkiKey(row.Fields)
	if err != nil {
		return nil, err
	}

	// 规则1：姓名+牲畜类型+捐赠金额全等，最强证据
	for _, existing := range corpus {
		existingKey, err := extractMuzakkiKey(existing.Fields)
		if err != nil {
			// 库中历史脏数据不阻断检测，跳过该条
			continue
		}

		if existingKey.Nama == key.Nama &&
			existingKey.JenisHewan == key.JenisHewan &&
			numbersEqual(existingKey.NilaiDonasi, key.NilaiDonasi) {
			return &MatchResult{
				IsDuplicate:     true,
				MatchType:       meta.MatchTypeExact,
				MatchingFields:  []string{"nama_muzakki", "jenis_hewan", "nilai_donasi"},
				Confidence:      1.0,
				ExistingRecord:  existing,
				SuggestedAction: meta.DuplicateActionSkip,
			}, nil
		}
	}

	// 规则2：姓名相等且电话号码去非数字后相等，精确但证据稍弱
	if key.Phone != "" {
		for _, existing := range corpus {
			existingNama := Normalize(cast.ToString(existing.Fields["nama_muzakki"]))
			existingPhone := normalizePhone(cast.ToString(existing.Fields["no_telepon"]))

			if existingNama == key.Nama && existingPhone != "" && existingPhone == key.Phone {
				return &MatchResult{
					IsDuplicate:     true,
					MatchType:       meta.MatchTypeExact,
					MatchingFields:  []string{"nama_muzakki", "no_telepon"},
					Confidence:      0.9,
					ExistingRecord:  existing,
					SuggestedAction: meta.DuplicateActionMerge,
				}, nil
			}
		}
	}

	// 规则3：姓名模糊匹配，严格模式下完全禁用
	if !config.StrictMode {
		var best *ExistingRecord
		bestScore := 0.0

		for _, existing := range corpus {
			score := Similarity(key.Nama, cast.ToString(existing.Fields["nama_muzakki"]))
			if score > bestScore {
				bestScore = score
				best = existing
			}
		}

		// 相似度达到容差即计为重复，恰好等于容差也算
		if best != nil && bestScore >= config.Tolerance {
			return &MatchResult{
				IsDuplicate:     true,
				MatchType:       meta.MatchTypeFuzzy,
				MatchingFields:  []string{"nama_muzakki"},
				Confidence:      bestScore,
				ExistingRecord:  best,
				SuggestedAction: meta.DuplicateActionPrompt,
			}, nil
		}
	}

	return noMatch(), nil
}
