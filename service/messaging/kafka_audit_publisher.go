/*
 * @module service/messaging/kafka_audit_publisher
 * @description Kafka审计发布器，将每次批量上传的处理结果发布到审计主题供下游消费
 * @architecture 适配器模式 - 封装第三方Kafka客户端
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 批处理完成 -> 序列化审计消息 -> 发布到主题
 * @rules 审计发布失败只记录日志，不阻断上传管道
 * @dependencies github.com/segmentio/kafka-go, encoding/json
 * @refs service/upload/queue_service.go, service/models/upload.go
 */

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"donation-service/service/models"

	"github.com/segmentio/kafka-go"
)

// KafkaAuditConfig Kafka审计发布配置
type KafkaAuditConfig struct {
	Brokers []string
	Topic   string
}

// LoadKafkaAuditConfigFromEnv 从环境变量加载Kafka配置，未配置broker时返回nil表示禁用
func LoadKafkaAuditConfigFromEnv() *KafkaAuditConfig {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		return nil
	}

	topic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "donation.upload.audit"
	}

	return &KafkaAuditConfig{
		Brokers: strings.Split(brokers, ","),
		Topic:   topic,
	}
}

// KafkaAuditPublisher Kafka审计发布器
type KafkaAuditPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaAuditPublisher 创建Kafka审计发布器
func NewKafkaAuditPublisher(config *KafkaAuditConfig) *KafkaAuditPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
	}

	return &KafkaAuditPublisher{
		writer: writer,
		topic:  config.Topic,
	}
}

// PublishUploadAudit 发布一条上传审计消息，键为条目ID以保证同条目消息有序
func (p *KafkaAuditPublisher) PublishUploadAudit(ctx context.Context, history *models.UploadHistory) error {
	payload, err := json.Marshal(map[string]interface{}{
		"entry_id":           history.EntryID,
		"file_name":          history.FileName,
		"record_kind":        history.RecordKind,
		"uploaded_by":        history.UploadedBy,
		"total_records":      history.TotalRecords,
		"added_records":      history.AddedRecords,
		"skipped_records":    history.SkippedRecords,
		"updated_records":    history.UpdatedRecords,
		"merged_records":     history.MergedRecords,
		"error_records":      history.ErrorRecords,
		"exact_duplicates":   history.ExactDuplicates,
		"fuzzy_duplicates":   history.FuzzyDuplicates,
		"partial_duplicates": history.PartialDuplicates,
		"review_required":    history.ReviewRequired,
		"published_at":       time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("序列化审计消息失败: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(history.EntryID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "record_kind", Value: []byte(history.RecordKind)},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, message); err != nil {
		return fmt.Errorf("发布审计消息失败: %w", err)
	}

	slog.Debug("上传审计消息已发布", "topic", p.topic, "entry_id", history.EntryID)
	return nil
}

// Close 关闭发布器
func (p *KafkaAuditPublisher) Close() error {
	return p.writer.Close()
}
