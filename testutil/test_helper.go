/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"donation-service/service/models"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.Muzakki{},
		&models.Distribusi{},
		&models.UploadEntry{},
		&models.UploadHistory{},
		&models.UploadPartner{},
		&models.SSEEvent{},
		&models.SSEConnection{},
		&models.SystemConfig{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	// 清空所有表的数据
	tables := []string{
		"muzakki_records",
		"distribusi_records",
		"upload_entries",
		"upload_histories",
		"upload_partners",
		"sse_events",
		"sse_connections",
		"system_configs",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// MuzakkiOption 捐赠人记录选项函数类型
type MuzakkiOption func(*models.Muzakki)

// CreateMuzakki 创建测试捐赠人记录
func (f *TestDataFactory) CreateMuzakki(opts ...MuzakkiOption) *models.Muzakki {
	record := &models.Muzakki{
		ID:          generateID("mz"),
		NamaMuzakki: "Budi Santoso",
		NoTelepon:   "081234567890",
		JenisHewan:  "kambing",
		NilaiDonasi: 2500000,
		Alamat:      "Jl. Merdeka No. 1, Jakarta",
		SourceFile:  "seed.csv",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(record)
	}

	err := f.DB.Create(record).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test muzakki record: %v", err))
	}

	return record
}

// DistribusiOption 分发记录选项函数类型
type DistribusiOption func(*models.Distribusi)

// CreateDistribusi 创建测试分发记录
func (f *TestDataFactory) CreateDistribusi(opts ...DistribusiOption) *models.Distribusi {
	record := &models.Distribusi{
		ID:                generateID("ds"),
		NamaPenerima:      "Siti Aminah",
		AlamatPenerima:    "Jl. Mawar No. 5, Bandung",
		TanggalDistribusi: "2026-06-07",
		JenisHewan:        "sapi",
		JumlahPaket:       2,
		SourceFile:        "seed.csv",
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(record)
	}

	err := f.DB.Create(record).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test distribusi record: %v", err))
	}

	return record
}

// UploadEntryOption 上传条目选项函数类型
type UploadEntryOption func(*models.UploadEntry)

// CreateUploadEntry 创建测试上传条目
func (f *TestDataFactory) CreateUploadEntry(opts ...UploadEntryOption) *models.UploadEntry {
	entry := &models.UploadEntry{
		ID:         generateID("ue"),
		FileName:   "upload_" + generateSuffix() + ".csv",
		RecordKind: "muzakki",
		Source:     "http",
		UploadedBy: "test",
		Status:     "pending",
		RawData:    []byte("nama_muzakki,no_telepon\nBudi,0812\n"),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(entry)
	}

	err := f.DB.Create(entry).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test upload entry: %v", err))
	}

	return entry
}

// UploadPartnerOption 合作机构选项函数类型
type UploadPartnerOption func(*models.UploadPartner)

// CreateUploadPartner 创建测试合作机构
func (f *TestDataFactory) CreateUploadPartner(opts ...UploadPartnerOption) *models.UploadPartner {
	partner := &models.UploadPartner{
		ID:         generateID("pt"),
		Name:       "lembaga_" + generateSuffix(),
		APIKeyHash: "test_key_hash_" + generateSuffix(),
		KeyPrefix:  "dn_test_" + generateSuffix()[:4],
		IsEnabled:  true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(partner)
	}

	err := f.DB.Create(partner).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test upload partner: %v", err))
	}

	return partner
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%05d", time.Now().UnixNano()%100000)
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// AssertJSONResponse 断言JSON响应
func (h *HTTPTestHelper) AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedBody interface{}) {
	assert.Equal(t, expectedStatus, w.Code)

	if expectedBody != nil {
		var actualBody interface{}
		err := json.Unmarshal(w.Body.Bytes(), &actualBody)
		assert.NoError(t, err)

		expectedJSON, _ := json.Marshal(expectedBody)
		actualJSON, _ := json.Marshal(actualBody)

		assert.JSONEq(t, string(expectedJSON), string(actualJSON))
	}
}
