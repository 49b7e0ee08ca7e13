package alerts

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/config"
	"github.com/pkg/errors"
)

type Client struct {
	conf       config.Alerts
	app        config.App
	dev        bool
	httpClient *http.Client
}

type AlertPayload struct {
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Severity  string                 `json:"severity"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details"`
	Timestamp string                 `json:"timestamp"`
}

func NewClient(conf config.Alerts, app config.App, dev bool) *Client {
	timeout := time.Duration(conf.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		conf:       conf,
		app:        app,
		dev:        dev,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SendCriticalAlert(ctx context.Context, title, message string, details map[string]interface{}) error {
	return c.SendAlert(ctx, "critical", title, message, details)
}

func (c *Client) SendWarningAlert(ctx context.Context, title, message string, details map[string]interface{}) error {
	return c.SendAlert(ctx, "warning", title, message, details)
}

// SendForwardFailureAlert reports a live sink that keeps rejecting records
func (c *Client) SendForwardFailureAlert(ctx context.Context, format string, failures int, err error) error {
	return c.SendCriticalAlert(ctx,
		"Forwarding Failure",
		fmt.Sprintf("synthlog %s could not deliver %d records in a row", format, failures),
		map[string]interface{}{
			"format":   format,
			"failures": failures,
			"error":    err.Error(),
		},
	)
}

// SendAlert posts the alert to the configured endpoint. Disabled alerts are
// only logged in dev mode.
func (c *Client) SendAlert(ctx context.Context, severity, title, message string, details map[string]interface{}) error {
	if !c.conf.Enabled {
		if c.dev {
			log.Infof("Alert [%s]: %s - %s (%v)", severity, title, message, details)
		}
		return nil
	}

	if c.conf.Endpoint == "" {
		return errors.New("alert endpoint not configured")
	}

	payload := AlertPayload{
		Service:   c.app.Name,
		Version:   c.app.Version,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := sonic.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal alert payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.Endpoint, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to create alert request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", c.app.Name, c.app.Version))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send alert")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Errorf("alert request failed with status %d", resp.StatusCode)
	}

	log.Debugf("alert sent: %s", title)
	return nil
}

// FailureTracker counts consecutive live send failures and alerts once per
// streak when the threshold is reached.
type FailureTracker struct {
	mu          sync.Mutex
	client      *Client
	format      string
	threshold   int
	consecutive int
}

func NewFailureTracker(client *Client, format string, threshold int) *FailureTracker {
	if threshold <= 0 {
		threshold = 1
	}
	return &FailureTracker{client: client, format: format, threshold: threshold}
}

func (t *FailureTracker) Failure(err error) {
	t.mu.Lock()
	t.consecutive++
	n := t.consecutive
	t.mu.Unlock()

	if n != t.threshold {
		return
	}
	if aerr := t.client.SendForwardFailureAlert(context.Background(), t.format, n, err); aerr != nil {
		log.Errorf("failed to send alert: %v", aerr)
	}
}

func (t *FailureTracker) Success() {
	t.mu.Lock()
	t.consecutive = 0
	t.mu.Unlock()
}

func (t *FailureTracker) Consecutive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutive
}
