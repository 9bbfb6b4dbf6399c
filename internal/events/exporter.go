// Package events exports informational registry events to external endpoints
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Event types
const (
	ChainSet     = "ChainSet"
	TokenSet     = "TokenSet"
	StrategySet  = "StrategySet"
	AdminUpdated = "AdminUpdated"
)

// Event is one committed registry change
type Event struct {
	Type    string                 `json:"type"`
	Time    time.Time              `json:"time"`
	Actor   string                 `json:"actor"`
	Subject string                 `json:"subject"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Sink receives events after the change they describe is committed
type Sink interface {
	Publish(ev Event)
}

// ExporterConfig holds configuration for event exporting
type ExporterConfig struct {
	WebhookURL     string        `json:"webhook_url"`
	WebhookAPIKey  string        `json:"webhook_api_key,omitempty"`
	BatchSize      int           `json:"batch_size"`
	ExportInterval time.Duration `json:"export_interval"`
}

// Exporter batches events and posts them to a webhook
type Exporter struct {
	config     ExporterConfig
	httpClient *retryablehttp.Client

	mutex      sync.Mutex
	batch      []Event
	lastExport time.Time
	exported   int

	exportCancel context.CancelFunc
	done         chan struct{}
}

// NewExporter creates an exporter and starts its periodic flush
func NewExporter(config ExporterConfig) (*Exporter, error) {
	if config.WebhookURL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.ExportInterval <= 0 {
		config.ExportInterval = 30 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	ctx, cancel := context.WithCancel(context.Background())
	e := &Exporter{
		config:       config,
		httpClient:   client,
		batch:        make([]Event, 0, config.BatchSize),
		exportCancel: cancel,
		done:         make(chan struct{}),
	}
	go e.periodicExport(ctx)

	logrus.WithField("url", config.WebhookURL).Info("Event exporter initialized")
	return e, nil
}

// Publish queues an event; a full batch is flushed immediately
func (e *Exporter) Publish(ev Event) {
	e.mutex.Lock()
	e.batch = append(e.batch, ev)
	full := len(e.batch) >= e.config.BatchSize
	e.mutex.Unlock()

	if full {
		go e.flush(context.Background())
	}
}

func (e *Exporter) periodicExport(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.config.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// flush posts the current batch. A failed batch is dropped: events are informational.
func (e *Exporter) flush(ctx context.Context) {
	e.mutex.Lock()
	if len(e.batch) == 0 {
		e.mutex.Unlock()
		return
	}
	events := e.batch
	e.batch = make([]Event, 0, e.config.BatchSize)
	e.mutex.Unlock()

	if err := e.exportToWebhook(ctx, events); err != nil {
		logrus.Errorf("Failed to export %d events: %v", len(events), err)
		return
	}

	e.mutex.Lock()
	e.lastExport = time.Now()
	e.exported += len(events)
	e.mutex.Unlock()
	logrus.Debugf("Exported %d events", len(events))
}

func (e *Exporter) exportToWebhook(ctx context.Context, events []Event) error {
	payload := struct {
		Events     []Event `json:"events"`
		ExportTime string  `json:"export_time"`
		Count      int     `json:"count"`
	}{
		Events:     events,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(events),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", e.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.WebhookAPIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Stop halts the periodic flush and exports what is left
func (e *Exporter) Stop() {
	e.exportCancel()
	<-e.done
	e.flush(context.Background())
}

// Status returns exporter counters for the status endpoint
func (e *Exporter) Status() map[string]interface{} {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	status := map[string]interface{}{
		"batch_size":      e.config.BatchSize,
		"export_interval": e.config.ExportInterval.String(),
		"pending":         len(e.batch),
		"exported":        e.exported,
	}
	if !e.lastExport.IsZero() {
		status["last_export"] = e.lastExport.Format(time.RFC3339)
	}
	return status
}
