/*
 * @module service/dedup/distribusi_detector
 * @description 分发记录重复检测器：主精确规则、部分匹配规则（地址+日期+类型）、同日地址模糊规则
 * @architecture 策略模式 - 分发记录变体
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 主精确匹配 -> 部分匹配 -> 同日模糊匹配 -> 判定非重复
 * @rules 模糊匹配仅在分发日期完全相同的记录间进行，使用地址混合相似度
 * @dependencies github.com/spf13/cast
 * @refs detector.go, similarity.go
 */

package dedup

import (
	"donation-service/service/meta"

	"github.com/spf13/cast"
)

// DistribusiDetector 分发记录重复检测器
type DistribusiDetector struct{}

// NewDistribusiDetector 创建分发记录检测器
func NewDistribusiDetector() *DistribusiDetector {
	return &DistribusiDetector{}
}

// RecordKind 返回记录类型
func (d *DistribusiDetector) RecordKind() string {
	return meta.RecordKindDistribusi
}

// Detect 按固定优先级比较一条分发记录与已有记录集
func (d *DistribusiDetector) Detect(row *UploadRow, corpus []*ExistingRecord, config *DetectionConfig) (*MatchResult, error) {
	key, err := extractDistribusiKey(row.Fields)
	if err != nil {
		return nil, err
	}

	// 规则1：受赠人姓名+地址+分发日期全等
	for _, existing := range corpus {
		existingKey, err := extractDistribusiKey(existing.Fields)
		if err != nil {
			continue
		}

		if existingKey.NamaPenerima == key.NamaPenerima &&
			existingKey.AlamatPenerima == key.AlamatPenerima &&
			existingKey.TanggalDistribusi == key.TanggalDistribusi {
			return &MatchResult{
				IsDuplicate:     true,
				MatchType:       meta.MatchTypeExact,
				MatchingFields:  []string{"nama_penerima", "alamat_penerima", "tanggal_distribusi"},
				Confidence:      1.0,
				ExistingRecord:  existing,
				SuggestedAction: meta.DuplicateActionSkip,
			}, nil
		}
	}

	// 规则2：地址+日期+牲畜类型相同而姓名不同，视为部分匹配
	for _, existing := range corpus {
		existingKey, err := extractDistribusiKey(existing.Fields)
		if err != nil {
			continue
		}

		if existingKey.AlamatPenerima != "" &&
			existingKey.AlamatPenerima == key.AlamatPenerima &&
			existingKey.TanggalDistribusi == key.TanggalDistribusi &&
			existingKey.JenisHewan == key.JenisHewan {
			return &MatchResult{
				IsDuplicate:     true,
				MatchType:       meta.MatchTypePartial,
				MatchingFields:  []string{"alamat_penerima", "tanggal_distribusi", "jenis_hewan"},
				Confidence:      0.8,
				ExistingRecord:  existing,
				SuggestedAction: meta.DuplicateActionMerge,
			}, nil
		}
	}

	// 规则3：仅在同一分发日期的记录间做地址模糊匹配，空地址不参与
	if !config.StrictMode && key.AlamatPenerima != "" {
		var best *ExistingRecord
		bestScore := 0.0

		for _, existing := range corpus {
			existingAlamat := Normalize(cast.ToString(existing.Fields["alamat_penerima"]))
			if existingAlamat == "" {
				continue
			}
			existingDate, err := NormalizeDate(cast.ToString(existing.Fields["tanggal_distribusi"]))
			if err != nil || existingDate != key.TanggalDistribusi {
				continue
			}

			score := AddressSimilarity(key.AlamatPenerima, existingAlamat)
			if score > bestScore {
				bestScore = score
				best = existing
			}
		}

		if best != nil && bestScore >= config.Tolerance {
			return &MatchResult{
				IsDuplicate:     true,
				MatchType:       meta.MatchTypeFuzzy,
				MatchingFields:  []string{"alamat_penerima", "tanggal_distribusi"},
				Confidence:      bestScore,
				ExistingRecord:  best,
				SuggestedAction: meta.DuplicateActionPrompt,
			}, nil
		}
	}

	return noMatch(), nil
}
