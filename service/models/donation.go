/*
 * @module service/models/donation
 * @description 捐赠领域模型定义，包括捐赠人记录（muzakki）和分发记录（distribusi）
 * @architecture 数据模型层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 批量上传 -> 重复检测 -> 决议落库
 * @rules 参与重复判定的关键字段提升为必填类型化属性，其余自由字段保留在 Extra 中
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/dedup, service/models/upload.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Muzakki 捐赠人记录模型
type Muzakki struct {
	ID          string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	NamaMuzakki string  `json:"nama_muzakki" gorm:"not null;size:255;index"`
	NoTelepon   string  `json:"no_telepon" gorm:"size:30"`
	JenisHewan  string  `json:"jenis_hewan" gorm:"size:50"` // kambing, sapi, domba 等
	NilaiDonasi float64 `json:"nilai_donasi" gorm:"not null"`
	Alamat      string  `json:"alamat" gorm:"size:500"`

	// 未参与匹配的自由字段，保持前向兼容
	Extra JSONB `json:"extra,omitempty" gorm:"type:jsonb"`

	// 审计字段
	SourceFile string    `json:"source_file,omitempty" gorm:"size:255"` // 来源上传文件
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Muzakki) TableName() string {
	return "muzakki_records"
}

// BeforeCreate 创建前钩子
func (m *Muzakki) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// ToFields 转换为字段映射，供重复检测器比较
func (m *Muzakki) ToFields() map[string]interface{} {
	fields := map[string]interface{}{
		"nama_muzakki": m.NamaMuzakki,
		"no_telepon":   m.NoTelepon,
		"jenis_hewan":  m.JenisHewan,
		"nilai_donasi": m.NilaiDonasi,
		"alamat":       m.Alamat,
	}
	for k, v := range m.Extra {
		if _, exists := fields[k]; !exists {
			fields[k] = v
		}
	}
	return fields
}

// Distribusi 分发记录模型
type Distribusi struct {
	ID                string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	NamaPenerima      string `json:"nama_penerima" gorm:"not null;size:255;index"`
	AlamatPenerima    string `json:"alamat_penerima" gorm:"not null;size:500"`
	TanggalDistribusi string `json:"tanggal_distribusi" gorm:"not null;size:20;index"` // YYYY-MM-DD
	JenisHewan        string `json:"jenis_hewan" gorm:"size:50"`
	JumlahPaket       int    `json:"jumlah_paket" gorm:"default:1"`

	Extra JSONB `json:"extra,omitempty" gorm:"type:jsonb"`

	SourceFile string    `json:"source_file,omitempty" gorm:"size:255"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Distribusi) TableName() string {
	return "distribusi_records"
}

// BeforeCreate 创建前钩子
func (d *Distribusi) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// ToFields 转换为字段映射，供重复检测器比较
func (d *Distribusi) ToFields() map[string]interface{} {
	fields := map[string]interface{}{
		"nama_penerima":      d.NamaPenerima,
		"alamat_penerima":    d.AlamatPenerima,
		"tanggal_distribusi": d.TanggalDistribusi,
		"jenis_hewan":        d.JenisHewan,
		"jumlah_paket":       d.JumlahPaket,
	}
	for k, v := range d.Extra {
		if _, exists := fields[k]; !exists {
			fields[k] = v
		}
	}
	return fields
}
