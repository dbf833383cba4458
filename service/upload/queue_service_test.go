/*
 * @module service/upload/queue_service_test
 * @description 上传队列协调器集成测试
 * @architecture 测试层 - 内存数据库驱动的管道测试
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 入队 -> 处理 -> 复核/落库 -> 状态与历史验证
 * @rules 覆盖入队校验、完整处理管道、人工复核流程、重试与删除规则
 * @dependencies testing, stretchr/testify, testutil
 */

package upload

import (
	"testing"
	"time"

	"donation-service/service/dedup"
	"donation-service/service/meta"
	"donation-service/service/models"
	"donation-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*QueueService, *testutil.TestDB, *testutil.TestDataFactory) {
	t.Helper()
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)
	return NewQueueService(tdb.DB, nil), tdb, testutil.NewTestDataFactory(tdb.DB)
}

// TestEnqueueValidation 测试入队校验
func TestEnqueueValidation(t *testing.T) {
	q, _, _ := newTestQueue(t)

	t.Run("空内容拒绝入队", func(t *testing.T) {
		_, err := q.Enqueue(&EnqueueRequest{FileName: "empty.csv"})
		assert.Error(t, err)
	})

	t.Run("无效记录类型拒绝入队", func(t *testing.T) {
		_, err := q.Enqueue(&EnqueueRequest{
			FileName:   "bad.csv",
			Data:       []byte("a,b\n1,2\n"),
			RecordKind: "unknown",
		})
		assert.Error(t, err)
	})

	t.Run("入队成功并持久化条目", func(t *testing.T) {
		data := []byte("nama_muzakki,nilai_donasi\nBudi,1000\n")
		entry, err := q.Enqueue(&EnqueueRequest{FileName: "ok.csv", Data: data})
		require.NoError(t, err)

		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, meta.EntryStatusPending, entry.Status)
		assert.Equal(t, int64(len(data)), entry.FileSize)
		assert.Equal(t, "http", entry.Source)
	})
}

// TestProcessEntryCompletes 测试无需复核的条目走完整管道
func TestProcessEntryCompletes(t *testing.T) {
	q, tdb, factory := newTestQueue(t)
	factory.CreateMuzakki() // Budi Santoso / kambing / 2500000

	data := []byte("nama_muzakki,no_telepon,jenis_hewan,nilai_donasi\n" +
		"Budi Santoso,0899,kambing,2500000\n" +
		"Dewi Lestari,0833,sapi,1000000\n")
	entry, err := q.Enqueue(&EnqueueRequest{
		FileName: "batch.csv",
		Data:     data,
		Config:   models.JSONB{"duplicate_action": meta.DuplicateActionSkip},
	})
	require.NoError(t, err)

	q.processEntry(entry.ID)

	var reloaded models.UploadEntry
	require.NoError(t, tdb.DB.First(&reloaded, "id = ?", entry.ID).Error)
	assert.Equal(t, meta.EntryStatusCompleted, reloaded.Status)
	assert.Equal(t, meta.RecordKindMuzakki, reloaded.RecordKind)
	assert.NotNil(t, reloaded.CompletedAt)

	// 重复行被跳过，仅新行落库
	var count int64
	tdb.DB.Model(&models.Muzakki{}).Count(&count)
	assert.Equal(t, int64(2), count)

	var histories []models.UploadHistory
	require.NoError(t, tdb.DB.Find(&histories).Error)
	require.Len(t, histories, 1)
	assert.Equal(t, entry.ID, histories[0].EntryID)
	assert.False(t, histories[0].ReviewRequired)
	assert.Equal(t, 1, histories[0].AddedRecords)
	assert.Equal(t, 1, histories[0].SkippedRecords)
}

// TestProcessEntryFailures 测试失败条目转入error终态
func TestProcessEntryFailures(t *testing.T) {
	q, tdb, _ := newTestQueue(t)

	t.Run("无法解析的内容", func(t *testing.T) {
		entry, err := q.Enqueue(&EnqueueRequest{
			FileName: "broken.json",
			Data:     []byte("[{broken"),
		})
		require.NoError(t, err)

		q.processEntry(entry.ID)

		var reloaded models.UploadEntry
		require.NoError(t, tdb.DB.First(&reloaded, "id = ?", entry.ID).Error)
		assert.Equal(t, meta.EntryStatusError, reloaded.Status)
		assert.NotEmpty(t, reloaded.ErrorMessage)
	})

	t.Run("表头无法识别且未指定类型", func(t *testing.T) {
		entry, err := q.Enqueue(&EnqueueRequest{
			FileName: "mystery.csv",
			Data:     []byte("kolom_a,kolom_b\nx,y\n"),
		})
		require.NoError(t, err)

		q.processEntry(entry.ID)

		var reloaded models.UploadEntry
		require.NoError(t, tdb.DB.First(&reloaded, "id = ?", entry.ID).Error)
		assert.Equal(t, meta.EntryStatusError, reloaded.Status)
	})

	t.Run("非待处理状态的条目被跳过", func(t *testing.T) {
		entry, err := q.Enqueue(&EnqueueRequest{
			FileName: "done.csv",
			Data:     []byte("nama_muzakki,nilai_donasi\nBudi,1000\n"),
		})
		require.NoError(t, err)
		tdb.DB.Model(&models.UploadEntry{}).Where("id = ?", entry.ID).
			Update("status", meta.EntryStatusCompleted)

		q.processEntry(entry.ID)

		var reloaded models.UploadEntry
		require.NoError(t, tdb.DB.First(&reloaded, "id = ?", entry.ID).Error)
		assert.Equal(t, meta.EntryStatusCompleted, reloaded.Status)
	})
}

// TestProcessEntryReviewFlow 测试复核流程：检测到重复后阻塞等待决议
func TestProcessEntryReviewFlow(t *testing.T) {
	q, tdb, factory := newTestQueue(t)
	factory.CreateMuzakki()

	data := []byte("nama_muzakki,no_telepon,jenis_hewan,nilai_donasi\n" +
		"Budi Santoso,0899,kambing,2500000\n" +
		"Dewi Lestari,0833,sapi,1000000\n")
	entry, err := q.Enqueue(&EnqueueRequest{FileName: "review.csv", Data: data})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.processEntry(entry.ID)
	}()

	// 等待条目进入复核槽位
	require.Eventually(t, func() bool {
		view := q.CurrentReview()
		return view != nil && view.Entry.ID == entry.ID
	}, 2*time.Second, 10*time.Millisecond)

	view := q.CurrentReview()
	require.NotNil(t, view)
	assert.Equal(t, 1, view.Result.PendingReviewCount())

	t.Run("决议动作必须是终局动作", func(t *testing.T) {
		err := q.ResolveReview(entry.ID, &dedup.DetectionConfig{
			Action: meta.DuplicateActionPrompt, Tolerance: 0.8,
		})
		assert.Error(t, err)
	})

	t.Run("条目ID不匹配返回错误", func(t *testing.T) {
		decision, err := dedup.NewDetectionConfig(false, meta.DuplicateActionSkip, 0.8)
		require.NoError(t, err)
		assert.Error(t, q.ResolveReview("other-entry", decision))
	})

	decision, err := dedup.NewDetectionConfig(false, meta.DuplicateActionSkip, 0.8)
	require.NoError(t, err)
	require.NoError(t, q.ResolveReview(entry.ID, decision))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("处理协程未在决议后结束")
	}

	var reloaded models.UploadEntry
	require.NoError(t, tdb.DB.First(&reloaded, "id = ?", entry.ID).Error)
	assert.Equal(t, meta.EntryStatusCompleted, reloaded.Status)
	assert.Nil(t, q.CurrentReview())

	var histories []models.UploadHistory
	require.NoError(t, tdb.DB.Find(&histories).Error)
	require.Len(t, histories, 1)
	assert.True(t, histories[0].ReviewRequired)
}

// TestProcessEntryReviewCancel 测试取消复核后条目回到待处理状态
func TestProcessEntryReviewCancel(t *testing.T) {
	q, tdb, factory := newTestQueue(t)
	factory.CreateMuzakki()

	data := []byte("nama_muzakki,no_telepon,jenis_hewan,nilai_donasi\n" +
		"Budi Santoso,0899,kambing,2500000\n")
	entry, err := q.Enqueue(&EnqueueRequest{FileName: "cancel.csv", Data: data})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.processEntry(entry.ID)
	}()

	require.Eventually(t, func() bool {
		return q.CurrentReview() != nil
	}, 2*time.Second, 10*time.Millisecond)

	// 不在复核中的条目取消为无操作
	require.NoError(t, q.CancelReview("other-entry"))
	require.NotNil(t, q.CurrentReview())

	require.NoError(t, q.CancelReview(entry.ID))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("处理协程未在取消后结束")
	}

	var reloaded models.UploadEntry
	require.NoError(t, tdb.DB.First(&reloaded, "id = ?", entry.ID).Error)
	assert.Equal(t, meta.EntryStatusPending, reloaded.Status)

	// 取消不落库任何记录
	var count int64
	tdb.DB.Model(&models.Muzakki{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

// TestWorkerSerializesReviews 测试工作协程按序处理：同一时刻仅一个条目在复核，
// 后续条目保持待处理直到前一个决议完成
func TestWorkerSerializesReviews(t *testing.T) {
	q, tdb, factory := newTestQueue(t)
	factory.CreateMuzakki()

	data := []byte("nama_muzakki,no_telepon,jenis_hewan,nilai_donasi\n" +
		"Budi Santoso,0899,kambing,2500000\n" +
		"Dewi Lestari,0833,sapi,1000000\n")
	first, err := q.Enqueue(&EnqueueRequest{FileName: "first.csv", Data: data})
	require.NoError(t, err)
	second, err := q.Enqueue(&EnqueueRequest{FileName: "second.csv", Data: data})
	require.NoError(t, err)

	require.NoError(t, q.Start())
	t.Cleanup(q.Stop)

	// 第一个条目进入复核槽位
	require.Eventually(t, func() bool {
		view := q.CurrentReview()
		return view != nil && view.Entry.ID == first.ID
	}, 2*time.Second, 10*time.Millisecond)

	// 第二个条目保持待处理，不会同时进入复核
	var waiting models.UploadEntry
	require.NoError(t, tdb.DB.First(&waiting, "id = ?", second.ID).Error)
	assert.Equal(t, meta.EntryStatusPending, waiting.Status)

	decision, err := dedup.NewDetectionConfig(false, meta.DuplicateActionSkip, 0.8)
	require.NoError(t, err)
	require.NoError(t, q.ResolveReview(first.ID, decision))

	// 决议后队列继续，第二个条目才进入复核
	require.Eventually(t, func() bool {
		view := q.CurrentReview()
		return view != nil && view.Entry.ID == second.ID
	}, 2*time.Second, 10*time.Millisecond)

	var completed models.UploadEntry
	require.NoError(t, tdb.DB.First(&completed, "id = ?", first.ID).Error)
	assert.Equal(t, meta.EntryStatusCompleted, completed.Status)

	require.NoError(t, q.ResolveReview(second.ID, decision))
	require.Eventually(t, func() bool {
		var reloaded models.UploadEntry
		if err := tdb.DB.First(&reloaded, "id = ?", second.ID).Error; err != nil {
			return false
		}
		return reloaded.Status == meta.EntryStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

// TestStartRecoversInterruptedEntries 测试重启恢复：中间状态条目复位为待处理并重新入队
func TestStartRecoversInterruptedEntries(t *testing.T) {
	q, tdb, factory := newTestQueue(t)

	// 模拟上次运行中断在复核状态的条目
	entry := factory.CreateUploadEntry(func(e *models.UploadEntry) {
		e.Status = meta.EntryStatusReviewing
		e.RawData = []byte("nama_muzakki,no_telepon,jenis_hewan,nilai_donasi\n" +
			"Budi,0811,kambing,1000\n")
	})

	require.NoError(t, q.Start())
	t.Cleanup(q.Stop)
	assert.Error(t, q.Start()) // 重复启动被拒绝

	require.Eventually(t, func() bool {
		var reloaded models.UploadEntry
		if err := tdb.DB.First(&reloaded, "id = ?", entry.ID).Error; err != nil {
			return false
		}
		return reloaded.Status == meta.EntryStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	var count int64
	tdb.DB.Model(&models.Muzakki{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

// TestProcessEntryReupload 测试已入库批次重新上传时不再新增记录
func TestProcessEntryReupload(t *testing.T) {
	q, tdb, _ := newTestQueue(t)

	data := []byte("nama_muzakki,no_telepon,jenis_hewan,nilai_donasi\n" +
		"Budi Santoso,0811,kambing,2500000\n")
	config := models.JSONB{"duplicate_action": meta.DuplicateActionSkip}

	first, err := q.Enqueue(&EnqueueRequest{FileName: "batch.csv", Data: data, Config: config})
	require.NoError(t, err)
	q.processEntry(first.ID)

	second, err := q.Enqueue(&EnqueueRequest{FileName: "batch.csv", Data: data, Config: config})
	require.NoError(t, err)
	q.processEntry(second.ID)

	// 第二次上传识别为精确重复，不产生新记录
	var count int64
	tdb.DB.Model(&models.Muzakki{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var history models.UploadHistory
	require.NoError(t, tdb.DB.First(&history, "entry_id = ?", second.ID).Error)
	assert.Equal(t, 0, history.AddedRecords)
	assert.Equal(t, 1, history.SkippedRecords)
	assert.Equal(t, 1, history.ExactDuplicates)

	var reloaded models.UploadEntry
	require.NoError(t, tdb.DB.First(&reloaded, "id = ?", second.ID).Error)
	assert.Equal(t, meta.EntryStatusCompleted, reloaded.Status)
}

// TestProcessEntryRecordsRowErrors 测试行级错误明细写入上传历史
func TestProcessEntryRecordsRowErrors(t *testing.T) {
	q, tdb, _ := newTestQueue(t)

	data := []byte("nama_muzakki,jenis_hewan,nilai_donasi\n" +
		"Budi,kambing,1000\n" +
		"Siti,sapi,bukan angka\n")
	entry, err := q.Enqueue(&EnqueueRequest{FileName: "dirty.csv", Data: data})
	require.NoError(t, err)

	q.processEntry(entry.ID)

	var history models.UploadHistory
	require.NoError(t, tdb.DB.First(&history, "entry_id = ?", entry.ID).Error)
	assert.Equal(t, 1, history.AddedRecords)
	assert.Equal(t, 1, history.ErrorRecords)

	require.Len(t, history.RowErrors, 1)
	assert.Equal(t, float64(1), history.RowErrors[0]["row_index"])
	assert.Equal(t, meta.RowErrorSeverityError, history.RowErrors[0]["severity"])
	assert.NotEmpty(t, history.RowErrors[0]["message"])
}

// TestNeedsReview 测试复核判定规则
func TestNeedsReview(t *testing.T) {
	q, _, _ := newTestQueue(t)

	t.Run("无待决议重复不复核", func(t *testing.T) {
		result := &dedup.ProcessedBatchResult{
			TotalRecords: 2,
			Duplicates:   dedup.DuplicateBuckets{Exact: make([]dedup.DuplicatePair, 2)},
			Stats:        dedup.BatchStats{Skipped: 2},
		}
		assert.False(t, q.needsReview(result))
	})

	t.Run("全部行都出错时保守复核", func(t *testing.T) {
		result := &dedup.ProcessedBatchResult{
			TotalRecords: 1,
			Duplicates:   dedup.DuplicateBuckets{Fuzzy: make([]dedup.DuplicatePair, 1)},
			Errors:       make([]dedup.RowError, 1),
		}
		assert.True(t, q.needsReview(result))
	})

	t.Run("新记录占比超过阈值跳过复核", func(t *testing.T) {
		result := &dedup.ProcessedBatchResult{
			TotalRecords: 10,
			Duplicates:   dedup.DuplicateBuckets{Exact: make([]dedup.DuplicatePair, 1)},
			Stats:        dedup.BatchStats{Added: 9},
		}
		assert.False(t, q.needsReview(result))
	})

	t.Run("新记录占比恰好等于阈值仍复核", func(t *testing.T) {
		result := &dedup.ProcessedBatchResult{
			TotalRecords: 10,
			Duplicates:   dedup.DuplicateBuckets{Exact: make([]dedup.DuplicatePair, 2)},
			Stats:        dedup.BatchStats{Added: 8},
		}
		assert.True(t, q.needsReview(result))
	})

	t.Run("阈值可热更新且越界值被忽略", func(t *testing.T) {
		result := &dedup.ProcessedBatchResult{
			TotalRecords: 10,
			Duplicates:   dedup.DuplicateBuckets{Exact: make([]dedup.DuplicatePair, 4)},
			Stats:        dedup.BatchStats{Added: 6},
		}
		assert.True(t, q.needsReview(result))

		q.SetReviewThreshold(0.5)
		assert.False(t, q.needsReview(result))

		q.SetReviewThreshold(1.5)
		assert.False(t, q.needsReview(result))
	})
}

// TestRetryEntry 测试重试状态规则
func TestRetryEntry(t *testing.T) {
	q, tdb, factory := newTestQueue(t)

	t.Run("失败条目可重试", func(t *testing.T) {
		entry := factory.CreateUploadEntry(func(e *models.UploadEntry) {
			e.Status = meta.EntryStatusError
			e.ErrorMessage = "解析失败"
		})

		retried, err := q.RetryEntry(entry.ID)
		require.NoError(t, err)
		assert.Equal(t, meta.EntryStatusPending, retried.Status)
		assert.Empty(t, retried.ErrorMessage)

		var reloaded models.UploadEntry
		require.NoError(t, tdb.DB.First(&reloaded, "id = ?", entry.ID).Error)
		assert.Equal(t, meta.EntryStatusPending, reloaded.Status)
	})

	t.Run("已完成条目不可重试", func(t *testing.T) {
		entry := factory.CreateUploadEntry(func(e *models.UploadEntry) {
			e.Status = meta.EntryStatusCompleted
		})
		_, err := q.RetryEntry(entry.ID)
		assert.Error(t, err)
	})

	t.Run("条目不存在返回错误", func(t *testing.T) {
		_, err := q.RetryEntry("missing")
		assert.Error(t, err)
	})
}

// TestDeleteEntry 测试删除状态规则
func TestDeleteEntry(t *testing.T) {
	q, tdb, factory := newTestQueue(t)

	t.Run("待处理与终态条目可删除", func(t *testing.T) {
		pending := factory.CreateUploadEntry()
		completed := factory.CreateUploadEntry(func(e *models.UploadEntry) {
			e.Status = meta.EntryStatusCompleted
		})

		require.NoError(t, q.DeleteEntry(pending.ID))
		require.NoError(t, q.DeleteEntry(completed.ID))

		var count int64
		tdb.DB.Model(&models.UploadEntry{}).Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("处理中的条目不可删除", func(t *testing.T) {
		entry := factory.CreateUploadEntry(func(e *models.UploadEntry) {
			e.Status = meta.EntryStatusProcessing
		})
		assert.Error(t, q.DeleteEntry(entry.ID))
	})
}

// TestListEntries 测试条目分页与过滤
func TestListEntries(t *testing.T) {
	q, _, factory := newTestQueue(t)

	factory.CreateUploadEntry()
	factory.CreateUploadEntry(func(e *models.UploadEntry) {
		e.Status = meta.EntryStatusCompleted
	})
	factory.CreateUploadEntry(func(e *models.UploadEntry) {
		e.Status = meta.EntryStatusError
	})

	entries, total, err := q.ListEntries(1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, entries, 3)

	entries, total, err = q.ListEntries(1, 10, meta.EntryStatusError)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, meta.EntryStatusError, entries[0].Status)

	entries, total, err = q.ListEntries(2, 2, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, entries, 1)
}

// TestDetectionConfigFrom 测试条目配置到检测配置的转换
func TestDetectionConfigFrom(t *testing.T) {
	t.Run("缺省为人工复核策略", func(t *testing.T) {
		config, err := detectionConfigFrom(nil)
		require.NoError(t, err)
		assert.Equal(t, meta.DuplicateActionPrompt, config.Action)
		assert.Equal(t, 0.8, config.Tolerance)
		assert.False(t, config.StrictMode)
	})

	t.Run("显式配置生效", func(t *testing.T) {
		config, err := detectionConfigFrom(models.JSONB{
			"duplicate_action": meta.DuplicateActionMerge,
			"tolerance":        0.95,
			"strict_mode":      true,
		})
		require.NoError(t, err)
		assert.Equal(t, meta.DuplicateActionMerge, config.Action)
		assert.Equal(t, 0.95, config.Tolerance)
		assert.True(t, config.StrictMode)
	})

	t.Run("容差格式错误返回错误", func(t *testing.T) {
		_, err := detectionConfigFrom(models.JSONB{"tolerance": "banyak"})
		assert.Error(t, err)
	})

	t.Run("非法动作返回错误", func(t *testing.T) {
		_, err := detectionConfigFrom(models.JSONB{"duplicate_action": "explode"})
		assert.Error(t, err)
	})
}
