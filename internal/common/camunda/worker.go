// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"applicant-registry/internal/common/config"
)

// StartWorker opens a job worker for taskType unless it is disabled.
// It reports whether a worker was opened.
func (c *Client) StartWorker(taskType string, wcfg config.WorkerConfig, handler worker.JobHandler) bool {
	if !wcfg.Enabled {
		c.logger.Info("worker disabled", zap.String("taskType", taskType))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.workers[taskType]; ok {
		c.logger.Warn("worker already started", zap.String("taskType", taskType))
		return false
	}

	if c.observer != nil {
		handler = Observe(c.observer, taskType, handler)
	}

	c.workers[taskType] = c.client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	c.logger.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return true
}

// Workers returns the task types with an open worker.
func (c *Client) Workers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.workers))
	for taskType := range c.workers {
		out = append(out, taskType)
	}
	return out
}

// Close stops every worker, waits for in-flight jobs, then releases the
// gRPC connection.
func (c *Client) Close() error {
	c.mu.Lock()
	for taskType, w := range c.workers {
		c.logger.Info("stopping worker", zap.String("taskType", taskType))
		w.Close()
		w.AwaitClose()
	}
	c.workers = map[string]worker.JobWorker{}
	c.mu.Unlock()

	return c.client.Close()
}
