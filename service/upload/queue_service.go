/*
 * @module service/upload/queue_service
 * @description 上传队列协调器：顺序处理上传条目，驱动解析、重复检测、人工复核与结果落库
 * @architecture 单工作协程 + 有界通道队列 + 单复核槽位
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow pending -> uploading -> detecting_duplicates -> (reviewing_duplicates) -> processing -> completed/error
 * @rules 队列严格按入队顺序处理；复核期间队列阻塞等待决议；单条目失败不阻断后续条目
 * @dependencies gorm.io/gorm, service/dedup, service/distributed_lock
 * @refs parser.go, review_slot.go, store.go
 */

package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"donation-service/service/dedup"
	"donation-service/service/distributed_lock"
	"donation-service/service/meta"
	"donation-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// 队列容量与分布式锁参数
const (
	queueCapacity      = 100
	queueDrainLockKey  = "upload_queue_drain"
	queueDrainLockTTL  = 10 * time.Minute
	lockRetryInterval  = 2 * time.Second
	defaultNewRatioMin = 0.8
)

// EventPublisher 上传管道事件发布接口，由SSE事件服务实现
type EventPublisher interface {
	PublishUploadEvent(eventType string, data map[string]interface{})
}

// AuditPublisher 上传审计发布接口，由Kafka审计发布器实现
type AuditPublisher interface {
	PublishUploadAudit(ctx context.Context, history *models.UploadHistory) error
}

// PipelineObserver 管道指标观测接口，由Prometheus指标实现
type PipelineObserver interface {
	ObserveEntryStatus(status string)
	ObserveBatch(kind string, result *dedup.ProcessedBatchResult)
}

// EnqueueRequest 入队请求
type EnqueueRequest struct {
	FileName   string
	Data       []byte
	RecordKind string // 可为空，由表头识别
	Source     string // http, mqtt
	UploadedBy string
	Config     models.JSONB
}

// ReviewView 当前复核条目的完整视图，供复核界面渲染
type ReviewView struct {
	Entry  *models.UploadEntry         `json:"entry"`
	Result *dedup.ProcessedBatchResult `json:"result"`
}

// QueueService 上传队列协调器
type QueueService struct {
	db        *gorm.DB
	parser    *Parser
	processor *dedup.BatchProcessor
	store     *RecordStore

	events  EventPublisher
	audit   AuditPublisher
	lock    distributed_lock.DistributedLock
	metrics PipelineObserver

	// 新记录占比超过该阈值时跳过人工复核
	thresholdMu     sync.RWMutex
	reviewThreshold float64

	queue chan string

	slotMu    sync.Mutex
	reviewing *ReviewSlot

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewQueueService 创建上传队列协调器
func NewQueueService(db *gorm.DB, events EventPublisher) *QueueService {
	ctx, cancel := context.WithCancel(context.Background())
	return &QueueService{
		db:              db,
		parser:          NewParser(),
		processor:       dedup.NewBatchProcessor(),
		store:           NewRecordStore(db),
		events:          events,
		reviewThreshold: defaultNewRatioMin,
		queue:           make(chan string, queueCapacity),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// SetAuditPublisher 注入审计发布器（可选）
func (q *QueueService) SetAuditPublisher(audit AuditPublisher) {
	q.audit = audit
}

// SetDistributedLock 注入分布式锁（可选，多实例部署时防止并发消费）
func (q *QueueService) SetDistributedLock(lock distributed_lock.DistributedLock) {
	q.lock = lock
}

// SetObserver 注入指标观测器（可选）
func (q *QueueService) SetObserver(metrics PipelineObserver) {
	q.metrics = metrics
}

// SetReviewThreshold 设置跳过复核的新记录占比阈值
func (q *QueueService) SetReviewThreshold(threshold float64) {
	if threshold < 0 || threshold > 1 {
		return
	}
	q.thresholdMu.Lock()
	q.reviewThreshold = threshold
	q.thresholdMu.Unlock()
}

// Start 启动工作协程，并恢复上次中断的条目
func (q *QueueService) Start() error {
	if q.started {
		return fmt.Errorf("上传队列已启动")
	}
	q.started = true

	if err := q.recoverInterrupted(); err != nil {
		return err
	}

	q.wg.Add(1)
	go q.run()

	slog.Info("上传队列协调器已启动", "capacity", queueCapacity)
	return nil
}

// Stop 停止工作协程
func (q *QueueService) Stop() {
	q.cancel()
	q.wg.Wait()
	slog.Info("上传队列协调器已停止")
}

// recoverInterrupted 服务重启恢复：中间状态条目复位为pending，并重新入队全部pending条目
func (q *QueueService) recoverInterrupted() error {
	interrupted := []string{
		meta.EntryStatusUploading,
		meta.EntryStatusDetecting,
		meta.EntryStatusReviewing,
		meta.EntryStatusProcessing,
	}
	if err := q.db.Model(&models.UploadEntry{}).
		Where("status IN ?", interrupted).
		Update("status", meta.EntryStatusPending).Error; err != nil {
		return fmt.Errorf("恢复中断条目失败: %w", err)
	}

	var pending []models.UploadEntry
	if err := q.db.Where("status = ?", meta.EntryStatusPending).
		Order("created_at ASC").Find(&pending).Error; err != nil {
		return fmt.Errorf("加载待处理条目失败: %w", err)
	}

	for i := range pending {
		select {
		case q.queue <- pending[i].ID:
		default:
			slog.Warn("队列已满，条目等待手动重试", "entry_id", pending[i].ID)
		}
	}
	if len(pending) > 0 {
		slog.Info("已恢复待处理上传条目", "count", len(pending))
	}
	return nil
}

// Enqueue 创建上传条目并入队，返回持久化后的条目
func (q *QueueService) Enqueue(req *EnqueueRequest) (*models.UploadEntry, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("上传内容为空")
	}
	if req.RecordKind != "" && !meta.IsValidRecordKind(req.RecordKind) {
		return nil, fmt.Errorf("无效的记录类型: %s", req.RecordKind)
	}
	source := req.Source
	if source == "" {
		source = "http"
	}

	entry := &models.UploadEntry{
		FileName:   req.FileName,
		FileSize:   int64(len(req.Data)),
		RecordKind: req.RecordKind,
		Source:     source,
		UploadedBy: req.UploadedBy,
		RawData:    req.Data,
		Config:     req.Config,
		Status:     meta.EntryStatusPending,
	}
	if err := q.db.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("创建上传条目失败: %w", err)
	}

	select {
	case q.queue <- entry.ID:
	default:
		q.db.Model(entry).Updates(map[string]interface{}{
			"status":        meta.EntryStatusError,
			"error_message": "上传队列已满",
		})
		return nil, fmt.Errorf("上传队列已满")
	}

	q.publishEvent(models.EventTypeEntryStatusChanged, map[string]interface{}{
		"entry_id":  entry.ID,
		"file_name": entry.FileName,
		"status":    entry.Status,
	})
	return entry, nil
}

// run 工作协程主循环，严格按入队顺序逐条处理
func (q *QueueService) run() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case entryID := <-q.queue:
			q.processWithLock(entryID)
		}
	}
}

// processWithLock 在分布式锁保护下处理单个条目，未配置锁时直接处理
func (q *QueueService) processWithLock(entryID string) {
	if q.lock != nil {
		for {
			acquired, err := q.lock.TryLock(q.ctx, queueDrainLockKey, queueDrainLockTTL)
			if err != nil {
				slog.Warn("获取队列锁失败，降级为无锁处理", "error", err)
				break
			}
			if acquired {
				defer func() {
					if err := q.lock.Unlock(q.ctx, queueDrainLockKey); err != nil {
						slog.Warn("释放队列锁失败", "error", err)
					}
				}()
				break
			}

			select {
			case <-q.ctx.Done():
				return
			case <-time.After(lockRetryInterval):
			}
		}
	}

	q.processEntry(entryID)
}

// processEntry 处理单个上传条目，失败转入error终态但不影响后续条目
func (q *QueueService) processEntry(entryID string) {
	var entry models.UploadEntry
	if err := q.db.First(&entry, "id = ?", entryID).Error; err != nil {
		slog.Error("加载上传条目失败", "entry_id", entryID, "error", err)
		return
	}
	if entry.Status != meta.EntryStatusPending {
		// 条目已被删除重建或状态被外部改变，丢弃过期队列消息
		slog.Warn("跳过非待处理状态的条目", "entry_id", entryID, "status", entry.Status)
		return
	}

	q.setStatus(&entry, meta.EntryStatusUploading, "")

	rows, detectedKind, err := q.parser.Parse(entry.RawData, entry.Config)
	if err != nil {
		q.failEntry(&entry, fmt.Sprintf("解析失败: %v", err))
		return
	}

	kind := entry.RecordKind
	if kind == "" {
		kind = detectedKind
	}
	if kind == "" {
		q.failEntry(&entry, "无法从表头识别记录类型，且未显式指定")
		return
	}
	if entry.RecordKind != kind {
		entry.RecordKind = kind
		q.db.Model(&entry).Update("record_kind", kind)
	}

	q.setStatus(&entry, meta.EntryStatusDetecting, "")

	corpus, err := q.store.FetchCorpus(kind)
	if err != nil {
		q.failEntry(&entry, err.Error())
		return
	}

	config, err := detectionConfigFrom(entry.Config)
	if err != nil {
		q.failEntry(&entry, fmt.Sprintf("检测配置非法: %v", err))
		return
	}

	result, err := q.processor.Process(q.ctx, kind, rows, corpus, config)
	if err != nil {
		q.failEntry(&entry, fmt.Sprintf("重复检测失败: %v", err))
		return
	}

	reviewRequired := q.needsReview(result)
	if reviewRequired {
		decision, cancelled, err := q.awaitReview(&entry, result)
		if err != nil {
			// 服务停止，条目留在复核状态，下次启动时复位为pending
			return
		}
		if cancelled {
			q.setStatus(&entry, meta.EntryStatusPending, "复核已取消")
			return
		}

		// 按复核决议重跑批处理，此时所有重复行都有终局动作
		result, err = q.processor.Process(q.ctx, kind, rows, corpus, decision)
		if err != nil {
			q.failEntry(&entry, fmt.Sprintf("复核决议执行失败: %v", err))
			return
		}
	}

	q.setStatus(&entry, meta.EntryStatusProcessing, "")

	if err := q.store.PersistBatch(kind, entry.FileName, result.NewRecords); err != nil {
		q.failEntry(&entry, fmt.Sprintf("落库失败: %v", err))
		return
	}

	history := q.buildHistory(&entry, result, reviewRequired)
	if err := q.db.Create(history).Error; err != nil {
		slog.Error("写入上传历史失败", "entry_id", entry.ID, "error", err)
	}
	if q.audit != nil {
		if err := q.audit.PublishUploadAudit(q.ctx, history); err != nil {
			slog.Warn("发布上传审计事件失败", "entry_id", entry.ID, "error", err)
		}
	}
	if q.metrics != nil {
		q.metrics.ObserveBatch(kind, result)
	}

	now := time.Now()
	entry.Result = models.JSONB(result.Summary())
	entry.CompletedAt = &now
	q.db.Model(&entry).Updates(map[string]interface{}{
		"result":       entry.Result,
		"completed_at": entry.CompletedAt,
	})
	q.setStatus(&entry, meta.EntryStatusCompleted, "")

	q.publishEvent(models.EventTypeBatchCompleted, map[string]interface{}{
		"entry_id":  entry.ID,
		"file_name": entry.FileName,
		"summary":   result.Summary(),
	})
}

// buildHistory 从批处理结果构造上传历史审计记录
func (q *QueueService) buildHistory(entry *models.UploadEntry, result *dedup.ProcessedBatchResult, reviewRequired bool) *models.UploadHistory {
	var rowErrors models.JSONBArray
	for _, rowErr := range result.Errors {
		rowErrors = append(rowErrors, models.JSONB{
			"row_index": rowErr.RowIndex,
			"message":   rowErr.Message,
			"severity":  rowErr.Severity,
		})
	}

	return &models.UploadHistory{
		EntryID:    entry.ID,
		FileName:   entry.FileName,
		RecordKind: result.RecordKind,
		UploadedBy: entry.UploadedBy,

		TotalRecords:   result.TotalRecords,
		AddedRecords:   result.Stats.Added,
		SkippedRecords: result.Stats.Skipped,
		UpdatedRecords: result.Stats.Updated,
		MergedRecords:  result.Stats.Merged,
		ErrorRecords:   result.Stats.Errored,

		ExactDuplicates:   len(result.Duplicates.Exact),
		FuzzyDuplicates:   len(result.Duplicates.Fuzzy),
		PartialDuplicates: len(result.Duplicates.Partial),

		ReviewRequired: reviewRequired,
		Details:        models.JSONB(result.Summary()),
		RowErrors:      rowErrors,
	}
}

// awaitReview 进入复核状态并阻塞等待决议。
// 返回的error仅在服务停止时非空
func (q *QueueService) awaitReview(entry *models.UploadEntry, result *dedup.ProcessedBatchResult) (*dedup.DetectionConfig, bool, error) {
	entry.Result = models.JSONB(result.Summary())
	q.db.Model(entry).Update("result", entry.Result)
	q.setStatus(entry, meta.EntryStatusReviewing, "")

	slot := newReviewSlot(entry, result)
	q.slotMu.Lock()
	q.reviewing = slot
	q.slotMu.Unlock()

	q.publishEvent(models.EventTypeReviewRequired, map[string]interface{}{
		"entry_id":  entry.ID,
		"file_name": entry.FileName,
		"summary":   result.Summary(),
	})

	decision, cancelled, err := slot.wait(q.ctx)

	q.slotMu.Lock()
	q.reviewing = nil
	q.slotMu.Unlock()

	return decision, cancelled, err
}

// needsReview 判断批处理结果是否需要人工复核：
// 存在待决议的重复行，且新记录占比未超过阈值
func (q *QueueService) needsReview(result *dedup.ProcessedBatchResult) bool {
	pending := result.Duplicates.Count() -
		result.Stats.Skipped - result.Stats.Updated - result.Stats.Merged
	if pending <= 0 {
		return false
	}

	classified := result.ClassifiedCount()
	if classified == 0 {
		return true
	}

	q.thresholdMu.RLock()
	threshold := q.reviewThreshold
	q.thresholdMu.RUnlock()

	newRatio := float64(result.Stats.Added) / float64(classified)
	return newRatio <= threshold
}

// CurrentReview 返回当前等待复核的条目视图，无复核时返回nil
func (q *QueueService) CurrentReview() *ReviewView {
	q.slotMu.Lock()
	defer q.slotMu.Unlock()
	if q.reviewing == nil {
		return nil
	}
	return &ReviewView{Entry: q.reviewing.Entry, Result: q.reviewing.Result}
}

// ResolveReview 提交复核决议。决议的默认动作与按行覆盖都必须是终局动作
func (q *QueueService) ResolveReview(entryID string, decision *dedup.DetectionConfig) error {
	if decision == nil {
		return fmt.Errorf("复核决议不能为空")
	}
	if err := decision.Validate(); err != nil {
		return err
	}
	if !meta.IsResolvedDuplicateAction(decision.Action) {
		return fmt.Errorf("复核决议的默认动作必须是终局动作: %s", decision.Action)
	}

	q.slotMu.Lock()
	slot := q.reviewing
	q.slotMu.Unlock()

	if slot == nil || slot.EntryID != entryID {
		return fmt.Errorf("条目不在等待复核中: %s", entryID)
	}
	if !slot.Resolve(decision) {
		return fmt.Errorf("复核已被处理: %s", entryID)
	}
	return nil
}

// CancelReview 取消复核，幂等：条目不在复核中或已被处理时为无操作
func (q *QueueService) CancelReview(entryID string) error {
	q.slotMu.Lock()
	slot := q.reviewing
	q.slotMu.Unlock()

	if slot == nil || slot.EntryID != entryID {
		return nil
	}
	slot.Cancel()
	return nil
}

// RetryEntry 重试失败或搁置的条目
func (q *QueueService) RetryEntry(entryID string) (*models.UploadEntry, error) {
	var entry models.UploadEntry
	if err := q.db.First(&entry, "id = ?", entryID).Error; err != nil {
		return nil, fmt.Errorf("上传条目不存在: %s", entryID)
	}
	if entry.Status != meta.EntryStatusError && entry.Status != meta.EntryStatusPending {
		return nil, fmt.Errorf("仅失败或待处理的条目可以重试，当前状态: %s", entry.Status)
	}

	if entry.Status != meta.EntryStatusPending {
		q.db.Model(&entry).Updates(map[string]interface{}{
			"status":        meta.EntryStatusPending,
			"error_message": "",
		})
		entry.Status = meta.EntryStatusPending
		entry.ErrorMessage = ""
	}

	select {
	case q.queue <- entry.ID:
	default:
		return nil, fmt.Errorf("上传队列已满")
	}
	return &entry, nil
}

// GetEntry 查询单个上传条目
func (q *QueueService) GetEntry(entryID string) (*models.UploadEntry, error) {
	var entry models.UploadEntry
	if err := q.db.First(&entry, "id = ?", entryID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListEntries 分页查询上传条目，可按状态过滤
func (q *QueueService) ListEntries(page, size int, status string) ([]models.UploadEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	query := q.db.Model(&models.UploadEntry{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.UploadEntry
	offset := (page - 1) * size
	if err := query.Order("created_at DESC").Offset(offset).Limit(size).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListHistories 分页查询上传历史
func (q *QueueService) ListHistories(page, size int, recordKind string) ([]models.UploadHistory, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	query := q.db.Model(&models.UploadHistory{})
	if recordKind != "" {
		query = query.Where("record_kind = ?", recordKind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var histories []models.UploadHistory
	offset := (page - 1) * size
	if err := query.Order("created_at DESC").Offset(offset).Limit(size).Find(&histories).Error; err != nil {
		return nil, 0, err
	}
	return histories, total, nil
}

// DeleteEntry 删除条目，处理中的条目不允许删除
func (q *QueueService) DeleteEntry(entryID string) error {
	var entry models.UploadEntry
	if err := q.db.First(&entry, "id = ?", entryID).Error; err != nil {
		return fmt.Errorf("上传条目不存在: %s", entryID)
	}
	if entry.Status != meta.EntryStatusPending && !meta.IsTerminalEntryStatus(entry.Status) {
		return fmt.Errorf("处理中的条目不允许删除，当前状态: %s", entry.Status)
	}
	return q.db.Delete(&entry).Error
}

// setStatus 更新条目状态并发布状态变化事件
func (q *QueueService) setStatus(entry *models.UploadEntry, status, message string) {
	entry.Status = status
	entry.ErrorMessage = message
	if err := q.db.Model(entry).Updates(map[string]interface{}{
		"status":        status,
		"error_message": message,
	}).Error; err != nil {
		slog.Error("更新条目状态失败", "entry_id", entry.ID, "status", status, "error", err)
	}

	if q.metrics != nil {
		q.metrics.ObserveEntryStatus(status)
	}
	q.publishEvent(models.EventTypeEntryStatusChanged, map[string]interface{}{
		"entry_id":  entry.ID,
		"file_name": entry.FileName,
		"status":    status,
		"message":   message,
	})
}

// failEntry 条目转入失败终态
func (q *QueueService) failEntry(entry *models.UploadEntry, message string) {
	slog.Error("上传条目处理失败", "entry_id", entry.ID, "file_name", entry.FileName, "reason", message)
	q.setStatus(entry, meta.EntryStatusError, message)
}

// publishEvent 发布SSE事件，事件服务未注入时静默跳过
func (q *QueueService) publishEvent(eventType string, data map[string]interface{}) {
	if q.events == nil {
		return
	}
	q.events.PublishUploadEvent(eventType, data)
}

// detectionConfigFrom 从条目配置构造检测配置。
// 支持 duplicate_action、tolerance、strict_mode 键，缺省为人工复核策略
func detectionConfigFrom(config models.JSONB) (*dedup.DetectionConfig, error) {
	action := cast.ToString(config["duplicate_action"])
	if action == "" {
		action = meta.DuplicateActionPrompt
	}

	tolerance := 0.8
	if raw, exists := config["tolerance"]; exists {
		value, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, fmt.Errorf("容差格式错误: %v", raw)
		}
		tolerance = value
	}

	return dedup.NewDetectionConfig(cast.ToBool(config["strict_mode"]), action, tolerance)
}
