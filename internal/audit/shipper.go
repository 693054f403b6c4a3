// Package audit emits a structured trail of organization lifecycle and admin
// authentication events. Entries are kept apart from application logs and
// can be routed to several destinations at once (slog, a JSON-lines file, a
// webhook) through the Shipper interface.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/org-management/org-service/internal/config"
	"github.com/org-management/org-service/internal/safego"
)

// LogEntry is a single audit record.
type LogEntry struct {
	Timestamp        time.Time      `json:"timestamp"`
	Action           string         `json:"action"`
	AdminID          string         `json:"admin_id,omitempty"`
	OrganizationID   string         `json:"organization_id,omitempty"`
	OrganizationName string         `json:"organization_name,omitempty"`
	AdminEmail       string         `json:"admin_email,omitempty"`
	IPAddress        string         `json:"ip_address,omitempty"`
	RequestID        string         `json:"request_id,omitempty"`
	StatusCode       int            `json:"status_code,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Shipper sends audit entries to one destination.
type Shipper interface {
	Ship(ctx context.Context, entry *LogEntry) error
	Close() error
}

// MultiShipper fans entries out to every configured shipper.
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

// NewMultiShipper builds the enabled shippers from configuration. Disabled
// entries are skipped.
func NewMultiShipper(configs []config.AuditShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "log":
			shipper = NewLogShipper(slog.Default())
		case "webhook":
			if cfg.Webhook == nil {
				return nil, errors.New("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, errors.New("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			_ = ms.Close()
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}
		ms.shippers = append(ms.shippers, shipper)
	}

	return ms, nil
}

// Add appends a shipper.
func (ms *MultiShipper) Add(s Shipper) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.shippers = append(ms.shippers, s)
}

// Len reports how many shippers are configured.
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to all shippers. A failing shipper does not stop the
// others; the last error is returned.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			lastErr = err
			slog.Warn("audit shipper error", "action", entry.Action, "error", err)
		}
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// LogShipper writes entries to a slog logger under the "audit" group.
type LogShipper struct {
	logger *slog.Logger
}

// NewLogShipper returns a shipper that logs through logger.
func NewLogShipper(logger *slog.Logger) *LogShipper {
	return &LogShipper{logger: logger}
}

// Ship logs the entry at info level.
func (ls *LogShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ls.logger.InfoContext(ctx, "audit",
		slog.Group("audit",
			"action", entry.Action,
			"admin_id", entry.AdminID,
			"organization_id", entry.OrganizationID,
			"organization_name", entry.OrganizationName,
			"admin_email", entry.AdminEmail,
			"ip_address", entry.IPAddress,
			"request_id", entry.RequestID,
			"status_code", entry.StatusCode,
			"metadata", entry.Metadata,
		),
	)
	return nil
}

// Close is a no-op.
func (ls *LogShipper) Close() error { return nil }

// Webhook and file shipper defaults.
const (
	defaultWebhookTimeout = 10 * time.Second
	defaultFlushInterval  = 5 * time.Second
	webhookQueueSize      = 1000
)

// WebhookShipper POSTs entries as JSON. Without batching each entry is one
// request body; with BatchSize > 0 a body is a JSON array of entries.
type WebhookShipper struct {
	url     string
	headers map[string]string
	client  *http.Client

	batchSize int
	flushEach time.Duration
	queue     chan *LogEntry
	stop      chan struct{}
	stopOnce  sync.Once
	done      <-chan struct{}
}

// NewWebhookShipper creates a webhook shipper. With a positive BatchSize a
// background goroutine owns the pending batch and sends it when full, on
// every FlushInterval tick, and on Close.
func NewWebhookShipper(cfg *config.AuditWebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	ws := &WebhookShipper{
		url:       cfg.URL,
		headers:   cfg.Headers,
		client:    &http.Client{Timeout: timeout},
		batchSize: cfg.BatchSize,
		flushEach: cfg.FlushInterval,
		stop:      make(chan struct{}),
	}
	if ws.flushEach <= 0 {
		ws.flushEach = defaultFlushInterval
	}
	if ws.batchSize > 0 {
		ws.queue = make(chan *LogEntry, webhookQueueSize)
		ws.done = safego.Go("audit-webhook-batcher", ws.runBatcher)
	}
	return ws, nil
}

// Ship queues the entry when batching, otherwise posts it immediately. A full
// queue falls back to posting the entry on its own.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.queue != nil {
		select {
		case ws.queue <- entry:
			return nil
		default:
			slog.Warn("audit webhook queue full, sending entry directly", "action", entry.Action)
		}
	}
	return ws.post(ctx, entry)
}

func (ws *WebhookShipper) runBatcher() {
	ticker := time.NewTicker(ws.flushEach)
	defer ticker.Stop()

	pending := make([]*LogEntry, 0, ws.batchSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), ws.client.Timeout)
		defer cancel()
		if err := ws.post(ctx, pending); err != nil {
			slog.Error("failed to send audit batch", "url", ws.url, "entries", len(pending), "error", err)
		}
		pending = pending[:0]
	}

	for {
		select {
		case entry := <-ws.queue:
			pending = append(pending, entry)
			if len(pending) >= ws.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ws.stop:
			for {
				select {
				case entry := <-ws.queue:
					pending = append(pending, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// post sends body (one entry or a batch) as JSON.
func (ws *WebhookShipper) post(ctx context.Context, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes the pending batch and waits for the batcher to exit.
func (ws *WebhookShipper) Close() error {
	ws.stopOnce.Do(func() {
		close(ws.stop)
		if ws.done != nil {
			<-ws.done
		}
	})
	return nil
}

// FileShipper appends entries as JSON lines. With MaxSizeMB set, the file is
// rotated before a write would take it past the limit: path becomes path.1,
// path.1 becomes path.2, and so on, keeping MaxBackups backups (at least one).
type FileShipper struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileShipper opens (or creates) the audit file for appending.
func NewFileShipper(cfg *config.AuditFileConfig) (*FileShipper, error) {
	fs := &FileShipper{
		path:       cfg.Path,
		maxBytes:   int64(cfg.MaxSizeMB) << 20,
		maxBackups: max(cfg.MaxBackups, 1),
	}
	if err := fs.open(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileShipper) open() error {
	file, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit log file: %w", err)
	}
	fs.file, fs.size = file, info.Size()
	return nil
}

// Ship appends one JSON line.
func (fs *FileShipper) Ship(_ context.Context, entry *LogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.maxBytes > 0 && fs.size > 0 && fs.size+int64(len(line)) > fs.maxBytes {
		if err := fs.rotate(); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}
	n, err := fs.file.Write(line)
	fs.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (fs *FileShipper) backup(n int) string {
	return fmt.Sprintf("%s.%d", fs.path, n)
}

// rotate closes the live file, shifts the backups and reopens an empty file.
// Callers hold mu.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}
	if err := os.Remove(fs.backup(fs.maxBackups)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for n := fs.maxBackups - 1; n >= 1; n-- {
		if err := os.Rename(fs.backup(n), fs.backup(n+1)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.Rename(fs.path, fs.backup(1)); err != nil {
		return err
	}
	return fs.open()
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
