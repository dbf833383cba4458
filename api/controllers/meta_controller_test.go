/*
 * @module api/controllers/meta_controller_test
 * @description 元数据控制器单元测试
 * @architecture 测试层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow HTTP请求 -> 控制器 -> 响应验证
 * @rules 验证元数据接口的响应结构与内容完整性
 * @dependencies testing, net/http/httptest, stretchr/testify
 */

package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"donation-service/service/meta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// TestGetRecordKinds 测试记录类型元数据接口
func TestGetRecordKinds(t *testing.T) {
	controller := NewMetaController()

	req := httptest.NewRequest("GET", "/meta/record-kinds", nil)
	w := httptest.NewRecorder()
	controller.GetRecordKinds(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeAPIResponse(t, w)
	assert.Equal(t, 0, resp.Status)

	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, len(meta.RecordKinds))

	codes := make(map[string]bool)
	for _, item := range items {
		entry := item.(map[string]interface{})
		codes[entry["code"].(string)] = true
	}
	assert.True(t, codes[meta.RecordKindMuzakki])
	assert.True(t, codes[meta.RecordKindDistribusi])
}

// TestGetDuplicateActions 测试重复处理动作元数据接口
func TestGetDuplicateActions(t *testing.T) {
	controller := NewMetaController()

	req := httptest.NewRequest("GET", "/meta/duplicate-actions", nil)
	w := httptest.NewRecorder()
	controller.GetDuplicateActions(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeAPIResponse(t, w)
	assert.Equal(t, 0, resp.Status)

	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, len(meta.DuplicateActions))
}

// TestGetEntryStatuses 测试条目状态元数据接口
func TestGetEntryStatuses(t *testing.T) {
	controller := NewMetaController()

	req := httptest.NewRequest("GET", "/meta/entry-statuses", nil)
	w := httptest.NewRecorder()
	controller.GetEntryStatuses(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeAPIResponse(t, w)
	assert.Equal(t, 0, resp.Status)

	items, ok := resp.Data.([]interface{})
	require.True(t, ok)

	// 终态标记必须与状态定义一致
	for _, item := range items {
		entry := item.(map[string]interface{})
		code := entry["code"].(string)
		assert.Equal(t, meta.IsTerminalEntryStatus(code), entry["is_terminal"].(bool))
	}
}
