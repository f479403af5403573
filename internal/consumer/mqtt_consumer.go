package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"vitalgate/internal/config"
	"vitalgate/internal/mqtt"
	"vitalgate/internal/service"
)

// Authorizer 写入凭证校验
type Authorizer interface {
	Authorize(ctx context.Context, apiKey string) error
}

// Ingester 生命体征摄入
type Ingester interface {
	Ingest(ctx context.Context, patientID string, in *service.IngestInput, headerToken string) (*service.IngestResult, error)
}

// IngestMessage 设备通过 MQTT 上报的消息格式。
// 凭证和幂等键随消息携带（MQTT 没有请求头）。
type IngestMessage struct {
	PatientID      string               `json:"patient_id"`
	APIKey         string               `json:"api_key"`
	IdempotencyKey string               `json:"idempotency_key"`
	Vital          *service.IngestInput `json:"vital"`
}

// MQTTConsumer 把 MQTT 上报桥接到与 HTTP 相同的摄入管道：
// 同样的凭证校验、同样的校验规则、同样的幂等仲裁。
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqtt.Client
	auth       Authorizer
	ingester   Ingester
	logger     *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	auth Authorizer,
	ingester Ingester,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		auth:       auth,
		ingester:   ingester,
		logger:     logger,
	}
}

// Start 启动消费者，订阅上报主题并阻塞到上下文取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := c.config.MQTT.Topic
	if topic == "" {
		return fmt.Errorf("mqtt ingest topic not configured")
	}

	if err := c.mqttClient.Subscribe(topic, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to ingest topic: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", topic))

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	topic := c.config.MQTT.Topic
	if topic != "" {
		if err := c.mqttClient.Unsubscribe(topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理一条MQTT上报消息
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var msg IngestMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal ingest message: %w", err)
	}

	if msg.PatientID == "" || msg.Vital == nil {
		return fmt.Errorf("ingest message missing patient_id or vital")
	}

	ctx := context.Background()

	if err := c.auth.Authorize(ctx, msg.APIKey); err != nil {
		c.logger.Warn("Rejected MQTT ingestion",
			zap.String("patient_id", msg.PatientID),
			zap.Error(err),
		)
		return err
	}

	result, err := c.ingester.Ingest(ctx, msg.PatientID, msg.Vital, msg.IdempotencyKey)
	if err != nil {
		if verr, ok := err.(*service.ValidationError); ok {
			c.logger.Warn("Invalid MQTT ingest payload",
				zap.String("patient_id", msg.PatientID),
				zap.Any("fields", verr.Fields),
			)
		}
		return err
	}

	if result.Duplicate {
		c.logger.Debug("Duplicate MQTT ingestion ignored",
			zap.String("patient_id", msg.PatientID),
		)
		return nil
	}

	c.logger.Info("Stored vital from MQTT",
		zap.String("vital_id", result.VitalID),
		zap.String("patient_id", msg.PatientID),
	)
	return nil
}
