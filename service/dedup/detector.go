/*
 * @module service/dedup/detector
 * @description 重复检测器接口与记录关键字段提取，按记录类型分发检测实现
 * @architecture 策略模式 - 每种记录类型一个检测器变体
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 关键字段提取 -> 规则逐级匹配 -> 结果分类
 * @rules 规则按证据强度固定排序，前序规则命中后不再评估后序规则
 * @dependencies github.com/spf13/cast
 * @refs muzakki_detector.go, distribusi_detector.go
 */

package dedup

import (
	"fmt"
	"strings"
	"time"

	"donation-service/service/meta"

	"github.com/spf13/cast"
)

// DuplicateDetector 重复检测器接口，两种记录类型各有一个实现
type DuplicateDetector interface {
	// RecordKind 返回检测器服务的记录类型
	RecordKind() string
	// Detect 将一条上传行与已有记录集比较，返回分类结果；
	// 行数据无法提取关键字段时返回错误，由批处理器记为行级错误
	Detect(row *UploadRow, corpus []*ExistingRecord, config *DetectionConfig) (*MatchResult, error)
}

// DetectorForKind 按记录类型返回检测器
func DetectorForKind(kind string) (DuplicateDetector, error) {
	switch kind {
	case meta.RecordKindMuzakki:
		return NewMuzakkiDetector(), nil
	case meta.RecordKindDistribusi:
		return NewDistribusiDetector(), nil
	default:
		return nil, fmt.Errorf("不支持的记录类型: %s", kind)
	}
}

// muzakkiKey 捐赠人记录的匹配关键字段，从开放字段映射中提升为类型化属性
type muzakkiKey struct {
	Nama        string
	Phone       string
	JenisHewan  string
	NilaiDonasi float64
}

// extractMuzakkiKey 提取捐赠人关键字段，姓名缺失或金额非法视为行级错误
func extractMuzakkiKey(fields map[string]interface{}) (*muzakkiKey, error) {
	nama := Normalize(cast.ToString(fields["nama_muzakki"]))
	if nama == "" {
		return nil, fmt.Errorf("捐赠人姓名(nama_muzakki)不能为空")
	}

	nilai, err := cast.ToFloat64E(fields["nilai_donasi"])
	if err != nil {
		return nil, fmt.Errorf("捐赠金额(nilai_donasi)格式错误: %v", fields["nilai_donasi"])
	}

	return &muzakkiKey{
		Nama:        nama,
		Phone:       normalizePhone(cast.ToString(fields["no_telepon"])),
		JenisHewan:  Normalize(cast.ToString(fields["jenis_hewan"])),
		NilaiDonasi: nilai,
	}, nil
}

// distribusiKey 分发记录的匹配关键字段
type distribusiKey struct {
	NamaPenerima      string
	AlamatPenerima    string
	TanggalDistribusi string
	JenisHewan        string
}

// extractDistribusiKey 提取分发记录关键字段
func extractDistribusiKey(fields map[string]interface{}) (*distribusiKey, error) {
	nama := Normalize(cast.ToString(fields["nama_penerima"]))
	if nama == "" {
		return nil, fmt.Errorf("受赠人姓名(nama_penerima)不能为空")
	}

	tanggal, err := NormalizeDate(cast.ToString(fields["tanggal_distribusi"]))
	if err != nil {
		return nil, fmt.Errorf("分发日期(tanggal_distribusi)格式错误: %w", err)
	}

	return &distribusiKey{
		NamaPenerima:      nama,
		AlamatPenerima:    Normalize(cast.ToString(fields["alamat_penerima"])),
		TanggalDistribusi: tanggal,
		JenisHewan:        Normalize(cast.ToString(fields["jenis_hewan"])),
	}, nil
}

// normalizePhone 电话号码归一化：剔除全部非数字字符
func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}

// 支持的日期输入格式，统一归一化为 2006-01-02
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
}

// NormalizeDate 日期归一化为 YYYY-MM-DD
func NormalizeDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("日期不能为空")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("无法解析日期: %s", value)
}

// numbersEqual 数值相等比较，带极小容差以抵消浮点噪声
func numbersEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
