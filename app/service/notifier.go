package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/framefolio/ms-go-downloads/app/factory"
	"github.com/framefolio/ms-go-downloads/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultNotifyQueueSize     = 64
	defaultNotifyMaxAttempts   = 3
	defaultNotifyRetryInterval = 5 * time.Second
	defaultNotifyHTTPTimeout   = 10 * time.Second
)

// Notification is the payload delivered to the photographer notification
// endpoint after a payment is recorded.
type Notification struct {
	ID            string `json:"id"`
	Subject       string `json:"subject"`
	SessionID     string `json:"sessionId"`
	PaymentID     string `json:"paymentId"`
	Kind          string `json:"kind"`
	AmountCents   int64  `json:"amountCents"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	EventID       string `json:"eventId"`
	CreatedAt     string `json:"createdAt"`
}

// Notifier delivers notifications out-of-band over HTTP. Enqueue never
// blocks the caller: when the queue is full the notification is dropped and
// Enqueue reports false.
type Notifier struct {
	cfg    config.NotifyConfig
	client *http.Client
	queue  chan Notification
	logger logrus.FieldLogger

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

func NewNotifier(cfg config.NotifyConfig) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultNotifyQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultNotifyMaxAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultNotifyRetryInterval
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultNotifyHTTPTimeout
	}

	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		queue:  make(chan Notification, cfg.QueueSize),
		logger: factory.NewModuleLogger("notifier"),
		done:   make(chan struct{}),
	}
}

func (n *Notifier) Start() {
	go n.run()
}

// Stop closes the queue and waits for the worker to drain it.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	close(n.queue)
	n.mu.Unlock()

	<-n.done
}

func (n *Notifier) Enqueue(item Notification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return false
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt == "" {
		item.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	select {
	case n.queue <- item:
		return true
	default:
		return false
	}
}

func (n *Notifier) run() {
	defer close(n.done)

	for item := range n.queue {
		if err := n.deliver(item); err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"notification_id": item.ID,
				"session_id":      item.SessionID,
			}).Error("Dropping notification after delivery attempts exhausted")
		}
	}
}

func (n *Notifier) deliver(item Notification) error {
	if n.cfg.URL == "" {
		return nil
	}

	body, err := json.Marshal(item)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(n.cfg.RetryInterval)
		}
		lastErr = n.post(body)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (n *Notifier) post(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
