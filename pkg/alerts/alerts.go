package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/httpx"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/store"
)

// Sink receives one structured alert per critical check failure.
// Delivery is fire-and-forget; retry semantics belong to the sink's backend.
type Sink interface {
	Deliver(ctx context.Context, alert models.Alert) error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaSink struct {
	writer kafkaWriter
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	cleaned := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cleaned...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 5 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSink{writer: w}, nil
}

func (s *KafkaSink) Deliver(ctx context.Context, alert models.Alert) error {
	if s == nil || s.writer == nil {
		return fmt.Errorf("kafka sink not initialized")
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.Check),
		Value: payload,
	})
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

// WebhookSink posts the alert to one configured URL. This is the trigger
// point only; downstream delivery retries are out of scope.
type WebhookSink struct {
	Client     *http.Client
	URL        string
	Retries    int
	RetryDelay time.Duration
}

func (s *WebhookSink) Deliver(ctx context.Context, alert models.Alert) error {
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("webhook sink not configured")
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	status, _, err := httpx.RequestJSON(ctx, s.Client, http.MethodPost, s.URL, payload, nil, s.Retries, s.RetryDelay)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("webhook returned status %d", status)
	}
	return nil
}

// Dispatcher fans one alert out to every sink, suppressing repeats for the
// same check within the dedup window so a flapping check cannot spam.
type Dispatcher struct {
	Sinks       []Sink
	Cache       store.Cache
	DedupWindow time.Duration
	Timeout     time.Duration
}

func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert) {
	if d == nil || len(d.Sinks) == 0 {
		return
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if d.Cache != nil && d.DedupWindow > 0 {
		fresh, err := d.Cache.SetNX(ctx, "alert:"+alert.Check, alert.AlertID, d.DedupWindow)
		if err == nil && !fresh {
			log.Printf("alert for check %q suppressed by dedup window", alert.Check)
			return
		}
	}
	for _, sink := range d.Sinks {
		if err := sink.Deliver(ctx, alert); err != nil {
			log.Printf("alert delivery failed for check %q: %v", alert.Check, err)
		}
	}
}
