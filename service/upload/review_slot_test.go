/*
 * @module service/upload/review_slot_test
 * @description 人工复核槽位单元测试
 * @architecture 测试层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 创建槽位 -> 并发决议/取消 -> 验证先到者生效
 * @rules 覆盖决议与取消的幂等性及等待方的三种结局
 * @dependencies testing, stretchr/testify
 */

package upload

import (
	"context"
	"testing"
	"time"

	"donation-service/service/dedup"
	"donation-service/service/meta"
	"donation-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlot() *ReviewSlot {
	entry := &models.UploadEntry{ID: "entry-1", FileName: "test.csv"}
	return newReviewSlot(entry, &dedup.ProcessedBatchResult{RecordKind: meta.RecordKindMuzakki})
}

// TestReviewSlotResolve 测试决议只有先到者生效
func TestReviewSlotResolve(t *testing.T) {
	slot := newTestSlot()
	config := dedup.DefaultDetectionConfig()

	assert.True(t, slot.Resolve(config))
	assert.False(t, slot.Resolve(config))
	assert.False(t, slot.Cancel())

	decision, cancelled, err := slot.wait(context.Background())
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Same(t, config, decision)
}

// TestReviewSlotCancel 测试取消幂等且等待方收到取消结局
func TestReviewSlotCancel(t *testing.T) {
	slot := newTestSlot()

	assert.True(t, slot.Cancel())
	assert.False(t, slot.Cancel())
	assert.False(t, slot.Resolve(dedup.DefaultDetectionConfig()))

	decision, cancelled, err := slot.wait(context.Background())
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Nil(t, decision)
}

// TestReviewSlotWaitContext 测试上下文结束时等待方返回错误
func TestReviewSlotWaitContext(t *testing.T) {
	slot := newTestSlot()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := slot.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
