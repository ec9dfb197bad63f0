package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zhaxinji/recagent/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueuePaperAnalyze schedules a pipeline run. Retries are cheap because
// the pipeline resumes from persisted progress.
func (c *Client) EnqueuePaperAnalyze(payload PaperAnalyzePayload) error {
	return c.enqueue(TypePaperAnalyze, payload, asynq.MaxRetry(3), asynq.Timeout(30*time.Minute))
}

func (c *Client) EnqueuePaperIngest(payload PaperIngestPayload) error {
	return c.enqueue(TypePaperIngest, payload, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute))
}

func (c *Client) enqueue(taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.Enqueue(task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
