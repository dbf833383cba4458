/*
 * @module service/monitoring/pipeline_metrics
 * @description 上传管道Prometheus指标：条目状态流转、批处理分类计数、复核次数
 * @architecture 观测层 - 指标采集
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 管道回调 -> 计数器递增 -> /metrics暴露
 * @rules 指标采集不参与业务逻辑，失败无副作用
 * @dependencies github.com/prometheus/client_golang
 * @refs service/upload/queue_service.go, main.go
 */

package monitoring

import (
	"donation-service/service/dedup"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics 上传管道指标集
type PipelineMetrics struct {
	entryStatusTotal *prometheus.CounterVec
	rowsTotal        *prometheus.CounterVec
	duplicatesTotal  *prometheus.CounterVec
	batchesTotal     *prometheus.CounterVec
}

// NewPipelineMetrics 创建并注册管道指标
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		entryStatusTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_entry_status_total",
			Help: "上传条目状态流转计数",
		}, []string{"status"}),

		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_rows_total",
			Help: "上传行处理结果计数",
		}, []string{"record_kind", "outcome"}),

		duplicatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_duplicates_total",
			Help: "检出的重复记录计数，按匹配类型分类",
		}, []string{"record_kind", "match_type"}),

		batchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_batches_total",
			Help: "处理完成的上传批次计数",
		}, []string{"record_kind"}),
	}
}

// ObserveEntryStatus 记录一次条目状态流转
func (m *PipelineMetrics) ObserveEntryStatus(status string) {
	m.entryStatusTotal.WithLabelValues(status).Inc()
}

// ObserveBatch 记录一次批处理结果
func (m *PipelineMetrics) ObserveBatch(kind string, result *dedup.ProcessedBatchResult) {
	m.batchesTotal.WithLabelValues(kind).Inc()

	m.rowsTotal.WithLabelValues(kind, "added").Add(float64(result.Stats.Added))
	m.rowsTotal.WithLabelValues(kind, "skipped").Add(float64(result.Stats.Skipped))
	m.rowsTotal.WithLabelValues(kind, "updated").Add(float64(result.Stats.Updated))
	m.rowsTotal.WithLabelValues(kind, "merged").Add(float64(result.Stats.Merged))
	m.rowsTotal.WithLabelValues(kind, "errored").Add(float64(result.Stats.Errored))

	m.duplicatesTotal.WithLabelValues(kind, "exact").Add(float64(len(result.Duplicates.Exact)))
	m.duplicatesTotal.WithLabelValues(kind, "fuzzy").Add(float64(len(result.Duplicates.Fuzzy)))
	m.duplicatesTotal.WithLabelValues(kind, "partial").Add(float64(len(result.Duplicates.Partial)))
}
