/*
 * @module service/upload/review_slot
 * @description 人工复核槽位，同一时刻仅允许一个上传条目等待复核，决议与取消幂等
 * @architecture 单槽位Future - 工作协程阻塞等待复核决议
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 创建槽位 -> 等待(决议|取消|上下文结束) -> 槽位释放
 * @rules Resolve与Cancel只有先到者生效，重复调用静默忽略；等待方恰好收到一种结局
 * @dependencies sync, context
 * @refs queue_service.go, service/dedup/types.go
 */

package upload

import (
	"context"
	"sync"
	"time"

	"donation-service/service/dedup"
	"donation-service/service/models"
)

// ReviewSlot 复核槽位，承载一个等待人工决议的上传条目
type ReviewSlot struct {
	EntryID   string
	Entry     *models.UploadEntry
	Result    *dedup.ProcessedBatchResult
	CreatedAt time.Time

	decision  chan *dedup.DetectionConfig
	cancelled chan struct{}
	once      sync.Once
}

// newReviewSlot 创建复核槽位
func newReviewSlot(entry *models.UploadEntry, result *dedup.ProcessedBatchResult) *ReviewSlot {
	return &ReviewSlot{
		EntryID:   entry.ID,
		Entry:     entry,
		Result:    result,
		CreatedAt: time.Now(),
		decision:  make(chan *dedup.DetectionConfig, 1),
		cancelled: make(chan struct{}),
	}
}

// Resolve 提交复核决议，返回是否生效。槽位已被决议或取消时为无操作
func (s *ReviewSlot) Resolve(config *dedup.DetectionConfig) bool {
	accepted := false
	s.once.Do(func() {
		s.decision <- config
		accepted = true
	})
	return accepted
}

// Cancel 取消复核，返回是否生效。重复取消为无操作
func (s *ReviewSlot) Cancel() bool {
	accepted := false
	s.once.Do(func() {
		close(s.cancelled)
		accepted = true
	})
	return accepted
}

// wait 阻塞等待复核结局：决议配置、取消或上下文结束
func (s *ReviewSlot) wait(ctx context.Context) (*dedup.DetectionConfig, bool, error) {
	select {
	case config := <-s.decision:
		return config, false, nil
	case <-s.cancelled:
		return nil, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
