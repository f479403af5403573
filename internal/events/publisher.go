package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"vitalgate/internal/domain"
)

// VitalStoredEvent 记录落库后发布到流上的事件
type VitalStoredEvent struct {
	Event      string `json:"event"`
	VitalID    string `json:"vital_id"`
	PatientID  string `json:"patient_id"`
	DeviceID   string `json:"device_id"`
	RecordedAt string `json:"recorded_at"`
}

// StreamPublisher 把 ingestion 事件发布到 Redis Streams，
// 供下游（告警、聚合等）用消费者组消费。
type StreamPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewStreamPublisher 创建事件发布器
func NewStreamPublisher(client *redis.Client, stream string, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// PublishVitalStored 发布一条 vital.stored 事件
func (p *StreamPublisher) PublishVitalStored(ctx context.Context, v *domain.Vital) error {
	event := VitalStoredEvent{
		Event:      "vital.stored",
		VitalID:    v.VitalID,
		PatientID:  v.PatientID,
		DeviceID:   v.DeviceID,
		RecordedAt: v.RecordedAt.UTC().Format(time.RFC3339Nano),
	}

	id, err := p.publishJSON(ctx, event)
	if err != nil {
		return err
	}

	p.logger.Debug("published vital event",
		zap.String("stream", p.stream),
		zap.String("message_id", id),
		zap.String("vital_id", v.VitalID))
	return nil
}

// publishJSON 序列化为 JSON 后 XADD 到流
func (p *StreamPublisher) publishJSON(ctx context.Context, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
}
