package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/go-redis/redis/v8"
)

// esDocument 写入 Elasticsearch 的文档结构
type esDocument struct {
	EventType string         `json:"event_type"`
	Severity  string         `json:"severity"`
	ActorIP   string         `json:"actor_ip"`
	UserAgent string         `json:"user_agent,omitempty"`
	GalleryID *uint64        `json:"gallery_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"@timestamp"`
}

// ElasticsearchSink 把审计事件镜像到 Elasticsearch，便于检索和看板
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

var _ Sink = (*ElasticsearchSink)(nil)

// NewElasticsearchSink client 为 nil 时返回 nil，调用方可直接传给 WithSinks
func NewElasticsearchSink(client *elasticsearch.Client, index string) Sink {
	if client == nil {
		return nil
	}
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Write(ctx context.Context, event *models.AuditEvent) error {
	body, err := json.Marshal(esDocument{
		EventType: string(event.EventType),
		Severity:  string(event.Severity),
		ActorIP:   event.ActorIP,
		UserAgent: event.UserAgent,
		GalleryID: event.GalleryID,
		Details:   event.Details,
		Timestamp: event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("序列化审计文档失败: %w", err)
	}

	opts := []func(*esapi.IndexRequest){s.client.Index.WithContext(ctx)}
	if event.ID != 0 {
		opts = append(opts, s.client.Index.WithDocumentID(strconv.FormatUint(event.ID, 10)))
	}
	res, err := s.client.Index(s.index, bytes.NewReader(body), opts...)
	if err != nil {
		return fmt.Errorf("写入 Elasticsearch 失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch 返回错误: %s", res.Status())
	}
	return nil
}

// StreamWriter Redis Stream 写入能力，cache.Cache 满足此接口
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// AlertSink 把 critical 级别事件推送到 Redis Stream，供告警消费者读取
type AlertSink struct {
	stream string
	writer StreamWriter
	maxLen int64
}

var _ Sink = (*AlertSink)(nil)

// NewAlertSink writer 为 nil 时返回 nil
func NewAlertSink(writer StreamWriter, stream string) Sink {
	if writer == nil || stream == "" {
		return nil
	}
	return &AlertSink{stream: stream, writer: writer, maxLen: 10000}
}

func (s *AlertSink) Name() string { return "alert_stream" }

func (s *AlertSink) Write(ctx context.Context, event *models.AuditEvent) error {
	if event.Severity != models.SeverityCritical {
		return nil
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("序列化告警详情失败: %w", err)
	}
	values := map[string]any{
		"event_type": string(event.EventType),
		"severity":   string(event.Severity),
		"actor_ip":   event.ActorIP,
		"details":    string(details),
		"created_at": event.CreatedAt.Format(time.RFC3339Nano),
	}
	if event.GalleryID != nil {
		values["gallery_id"] = strconv.FormatUint(*event.GalleryID, 10)
	}
	err = s.writer.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("推送安全告警失败: %w", err)
	}
	return nil
}
