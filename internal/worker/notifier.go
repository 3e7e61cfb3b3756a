package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poplygo/backend/internal/models"
	"github.com/poplygo/backend/pkg/queue"
	"github.com/poplygo/backend/pkg/retry"
)

// FeedbackStore is the persistence contract the notifier needs.
type FeedbackStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Feedback, error)
	MarkNotified(ctx context.Context, id uuid.UUID) error
}

// FeedbackNotifier processes feedback notification jobs: load the entry,
// POST it to the configured webhook, mark it notified.
type FeedbackNotifier struct {
	store      FeedbackStore
	queue      *queue.Queue
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewFeedbackNotifier creates a feedback notification processor.
func NewFeedbackNotifier(store FeedbackStore, q *queue.Queue, webhookURL string, logger *zap.Logger) *FeedbackNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackNotifier{
		store:      store,
		queue:      q,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Process executes one feedback notification job.
func (p *FeedbackNotifier) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeFeedbackNotify {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.FeedbackNotifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	f, err := p.store.GetByID(ctx, payload.FeedbackID)
	if err != nil {
		return fmt.Errorf("feedback not found: %s", payload.FeedbackID)
	}
	if f.Notified {
		p.logger.Info("feedback already notified", zap.String("feedback_id", f.ID.String()))
		return nil
	}
	if p.webhookURL == "" {
		p.logger.Info("no webhook configured, dropping notification", zap.String("feedback_id", f.ID.String()))
		return nil
	}

	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	err = retry.Do(ctx, 3, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("webhook status: %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}

	if err := p.store.MarkNotified(ctx, f.ID); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	p.logger.Info("feedback notification delivered", zap.String("feedback_id", f.ID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *FeedbackNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("feedback notifier stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.Error(err), zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
			time.Sleep(queue.RetryBackoff)
			_ = p.queue.Retry(ctx, job)
		}
	}
}
