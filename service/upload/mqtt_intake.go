/*
 * @module service/upload/mqtt_intake
 * @description MQTT上传通道，订阅合作机构上传主题，将JSON记录批量投递进上传队列
 * @architecture 发布订阅模式 - 连接MQTT broker并订阅主题
 * @stateFlow 连接 -> 订阅主题 -> 接收消息 -> 解包入队
 * @rules 主题末段为记录类型；消息体为JSON信封，records字段承载记录数组；支持自动重连
 * @dependencies github.com/eclipse/paho.mqtt.golang, encoding/json
 * @refs queue_service.go, parser.go
 */

package upload

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"donation-service/service/meta"
	"donation-service/service/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTIntakeConfig MQTT上传通道配置
type MQTTIntakeConfig struct {
	Broker    string
	Port      int
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	KeepAlive time.Duration
	Timeout   time.Duration
	// 订阅的主题模式，末段通配记录类型
	TopicPattern string
}

// LoadMQTTIntakeConfigFromEnv 从环境变量加载MQTT配置，未配置broker时返回nil表示禁用
func LoadMQTTIntakeConfigFromEnv() *MQTTIntakeConfig {
	broker := os.Getenv("MQTT_BROKER_HOST")
	if broker == "" {
		return nil
	}

	port := 1883
	if portStr := os.Getenv("MQTT_BROKER_PORT"); portStr != "" {
		if parsed, err := strconv.Atoi(portStr); err == nil {
			port = parsed
		}
	}

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = fmt.Sprintf("donation-upload-%d", time.Now().Unix())
	}

	topicPattern := os.Getenv("MQTT_UPLOAD_TOPIC")
	if topicPattern == "" {
		topicPattern = "donation/upload/+"
	}

	return &MQTTIntakeConfig{
		Broker:       broker,
		Port:         port,
		ClientID:     clientID,
		Username:     os.Getenv("MQTT_USERNAME"),
		Password:     os.Getenv("MQTT_PASSWORD"),
		QoS:          1,
		KeepAlive:    60 * time.Second,
		Timeout:      30 * time.Second,
		TopicPattern: topicPattern,
	}
}

// uploadEnvelope MQTT上传消息信封
type uploadEnvelope struct {
	FileName   string                   `json:"file_name"`
	UploadedBy string                   `json:"uploaded_by"`
	Config     map[string]interface{}   `json:"config,omitempty"`
	Records    []map[string]interface{} `json:"records"`
}

// MQTTIntake MQTT上传通道
type MQTTIntake struct {
	queue  *QueueService
	config *MQTTIntakeConfig
	client mqtt.Client
}

// NewMQTTIntake 创建MQTT上传通道
func NewMQTTIntake(queue *QueueService, config *MQTTIntakeConfig) *MQTTIntake {
	return &MQTTIntake{
		queue:  queue,
		config: config,
	}
}

// Start 连接broker并订阅上传主题
func (m *MQTTIntake) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", m.config.Broker, m.config.Port))
	opts.SetClientID(m.config.ClientID)
	opts.SetKeepAlive(m.config.KeepAlive)
	opts.SetConnectTimeout(m.config.Timeout)
	if m.config.Username != "" {
		opts.SetUsername(m.config.Username)
	}
	if m.config.Password != "" {
		opts.SetPassword(m.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		slog.Error("MQTT连接丢失，等待自动重连", "error", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		// 重连后重新订阅
		if token := client.Subscribe(m.config.TopicPattern, m.config.QoS, m.messageHandler); token.Wait() && token.Error() != nil {
			slog.Error("订阅上传主题失败", "topic", m.config.TopicPattern, "error", token.Error())
			return
		}
		slog.Info("MQTT上传通道已订阅主题", "topic", m.config.TopicPattern)
	})

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("连接MQTT broker失败: %v", token.Error())
	}

	slog.Info("MQTT上传通道已启动",
		"broker", m.config.Broker,
		"port", m.config.Port,
		"client_id", m.config.ClientID)
	return nil
}

// Stop 断开MQTT连接
func (m *MQTTIntake) Stop() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	slog.Info("MQTT上传通道已停止")
}

// messageHandler 处理上传消息：解包信封并投递进上传队列
func (m *MQTTIntake) messageHandler(client mqtt.Client, msg mqtt.Message) {
	kind := recordKindFromTopic(msg.Topic())
	if kind != "" && !meta.IsValidRecordKind(kind) {
		slog.Warn("忽略未知记录类型的上传主题", "topic", msg.Topic())
		return
	}

	var envelope uploadEnvelope
	if err := json.Unmarshal(msg.Payload(), &envelope); err != nil {
		slog.Error("上传消息解包失败", "topic", msg.Topic(), "error", err)
		return
	}
	if len(envelope.Records) == 0 {
		slog.Warn("上传消息不含记录，已忽略", "topic", msg.Topic())
		return
	}

	data, err := json.Marshal(envelope.Records)
	if err != nil {
		slog.Error("上传记录序列化失败", "topic", msg.Topic(), "error", err)
		return
	}

	config := models.JSONB{"format": "json"}
	for k, v := range envelope.Config {
		config[k] = v
	}

	fileName := envelope.FileName
	if fileName == "" {
		fileName = fmt.Sprintf("mqtt-%s-%d.json", kind, time.Now().Unix())
	}
	uploadedBy := envelope.UploadedBy
	if uploadedBy == "" {
		uploadedBy = "mqtt"
	}

	entry, err := m.queue.Enqueue(&EnqueueRequest{
		FileName:   fileName,
		Data:       data,
		RecordKind: kind,
		Source:     "mqtt",
		UploadedBy: uploadedBy,
		Config:     config,
	})
	if err != nil {
		slog.Error("MQTT上传入队失败", "topic", msg.Topic(), "error", err)
		return
	}

	slog.Info("MQTT上传已入队",
		"entry_id", entry.ID,
		"file_name", fileName,
		"records", len(envelope.Records))
}

// recordKindFromTopic 从主题末段提取记录类型
func recordKindFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	if last == "upload" {
		return ""
	}
	return last
}
