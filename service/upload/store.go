/*
 * @module service/upload/store
 * @description 捐赠记录存取层，为检测管道提供已有记录语料，并在事务内落库已决议记录
 * @architecture 数据访问层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 语料加载 -> 批处理 -> 事务落库（新增/覆盖/合并）
 * @rules 整批记录在单事务内落库，任一条失败则整批回滚；审计字段不进入Extra
 * @dependencies gorm.io/gorm, github.com/spf13/cast
 * @refs queue_service.go, service/models/donation.go
 */

package upload

import (
	"fmt"

	"donation-service/service/dedup"
	"donation-service/service/meta"
	"donation-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// RecordStore 捐赠记录存取层
type RecordStore struct {
	db *gorm.DB
}

// NewRecordStore 创建记录存取层
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

// FetchCorpus 加载指定记录类型的全部已有记录，作为重复检测语料
func (s *RecordStore) FetchCorpus(kind string) ([]*dedup.ExistingRecord, error) {
	switch kind {
	case meta.RecordKindMuzakki:
		var records []models.Muzakki
		if err := s.db.Find(&records).Error; err != nil {
			return nil, fmt.Errorf("加载捐赠人记录失败: %w", err)
		}
		corpus := make([]*dedup.ExistingRecord, 0, len(records))
		for i := range records {
			corpus = append(corpus, &dedup.ExistingRecord{
				ID:     records[i].ID,
				Fields: records[i].ToFields(),
			})
		}
		return corpus, nil

	case meta.RecordKindDistribusi:
		var records []models.Distribusi
		if err := s.db.Find(&records).Error; err != nil {
			return nil, fmt.Errorf("加载分发记录失败: %w", err)
		}
		corpus := make([]*dedup.ExistingRecord, 0, len(records))
		for i := range records {
			corpus = append(corpus, &dedup.ExistingRecord{
				ID:     records[i].ID,
				Fields: records[i].ToFields(),
			})
		}
		return corpus, nil

	default:
		return nil, fmt.Errorf("不支持的记录类型: %s", kind)
	}
}

// PersistBatch 在单事务内落库一批已决议记录。
// ExistingID 为空表示新增，否则覆盖该ID的已有记录
func (s *RecordStore) PersistBatch(kind, sourceFile string, records []*dedup.ResolvedRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			var err error
			switch kind {
			case meta.RecordKindMuzakki:
				err = s.persistMuzakki(tx, sourceFile, record)
			case meta.RecordKindDistribusi:
				err = s.persistDistribusi(tx, sourceFile, record)
			default:
				err = fmt.Errorf("不支持的记录类型: %s", kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// persistMuzakki 落库单条捐赠人记录
func (s *RecordStore) persistMuzakki(tx *gorm.DB, sourceFile string, record *dedup.ResolvedRecord) error {
	model := muzakkiFromFields(record.Fields, sourceFile)

	if record.ExistingID == "" {
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("新增捐赠人记录失败: %w", err)
		}
		return nil
	}

	var existing models.Muzakki
	if err := tx.First(&existing, "id = ?", record.ExistingID).Error; err != nil {
		return fmt.Errorf("待覆盖的捐赠人记录不存在: %s", record.ExistingID)
	}
	model.ID = existing.ID
	model.CreatedAt = existing.CreatedAt
	if err := tx.Save(model).Error; err != nil {
		return fmt.Errorf("覆盖捐赠人记录失败: %w", err)
	}
	return nil
}

// persistDistribusi 落库单条分发记录
func (s *RecordStore) persistDistribusi(tx *gorm.DB, sourceFile string, record *dedup.ResolvedRecord) error {
	model := distribusiFromFields(record.Fields, sourceFile)

	if record.ExistingID == "" {
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("新增分发记录失败: %w", err)
		}
		return nil
	}

	var existing models.Distribusi
	if err := tx.First(&existing, "id = ?", record.ExistingID).Error; err != nil {
		return fmt.Errorf("待覆盖的分发记录不存在: %s", record.ExistingID)
	}
	model.ID = existing.ID
	model.CreatedAt = existing.CreatedAt
	if err := tx.Save(model).Error; err != nil {
		return fmt.Errorf("覆盖分发记录失败: %w", err)
	}
	return nil
}

// 不进入Extra的审计与系统字段
var reservedFieldKeys = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"source_file": true,
	"extra":       true,
}

// muzakkiFromFields 从开放字段映射构造捐赠人模型，未提升的字段收入Extra
func muzakkiFromFields(fields map[string]interface{}, sourceFile string) *models.Muzakki {
	promoted := map[string]bool{
		"nama_muzakki": true,
		"no_telepon":   true,
		"jenis_hewan":  true,
		"nilai_donasi": true,
		"alamat":       true,
	}

	model := &models.Muzakki{
		NamaMuzakki: cast.ToString(fields["nama_muzakki"]),
		NoTelepon:   cast.ToString(fields["no_telepon"]),
		JenisHewan:  cast.ToString(fields["jenis_hewan"]),
		NilaiDonasi: cast.ToFloat64(fields["nilai_donasi"]),
		Alamat:      cast.ToString(fields["alamat"]),
		SourceFile:  sourceFile,
		Extra:       extraFields(fields, promoted),
	}
	return model
}

// distribusiFromFields 从开放字段映射构造分发模型
func distribusiFromFields(fields map[string]interface{}, sourceFile string) *models.Distribusi {
	promoted := map[string]bool{
		"nama_penerima":      true,
		"alamat_penerima":    true,
		"tanggal_distribusi": true,
		"jenis_hewan":        true,
		"jumlah_paket":       true,
	}

	// 分发日期统一以 YYYY-MM-DD 入库
	tanggal := cast.ToString(fields["tanggal_distribusi"])
	if normalized, err := dedup.NormalizeDate(tanggal); err == nil {
		tanggal = normalized
	}

	jumlah := cast.ToInt(fields["jumlah_paket"])
	if jumlah <= 0 {
		jumlah = 1
	}

	return &models.Distribusi{
		NamaPenerima:      cast.ToString(fields["nama_penerima"]),
		AlamatPenerima:    cast.ToString(fields["alamat_penerima"]),
		TanggalDistribusi: tanggal,
		JenisHewan:        cast.ToString(fields["jenis_hewan"]),
		JumlahPaket:       jumlah,
		SourceFile:        sourceFile,
		Extra:             extraFields(fields, promoted),
	}
}

// extraFields 收集未提升且非系统保留的字段
func extraFields(fields map[string]interface{}, promoted map[string]bool) models.JSONB {
	extra := models.JSONB{}
	for k, v := range fields {
		if promoted[k] || reservedFieldKeys[k] {
			continue
		}
		extra[k] = v
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
