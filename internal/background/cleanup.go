package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CleanupTask removes expired state and reports how many records it dropped.
type CleanupTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// CleanupManager runs the cleanup tasks once at startup and then on a cron schedule.
type CleanupManager struct {
	cron     *cron.Cron
	schedule string
	tasks    []CleanupTask
	logger   *slog.Logger
	timeout  time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCleanupManager creates a new cleanup manager. schedule accepts standard
// five-field cron specs and descriptors such as "@every 1h".
func NewCleanupManager(schedule string, logger *slog.Logger, tasks ...CleanupTask) *CleanupManager {
	return &CleanupManager{
		cron:     cron.New(),
		schedule: schedule,
		tasks:    tasks,
		logger:   logger,
		timeout:  30 * time.Second,
	}
}

// Start runs every task immediately and schedules the rest. It returns an
// error when the schedule cannot be parsed.
func (cm *CleanupManager) Start(ctx context.Context) error {
	cm.mu.Lock()
	cm.ctx, cm.cancel = context.WithCancel(ctx)
	cm.mu.Unlock()

	if _, err := cm.cron.AddFunc(cm.schedule, func() { cm.RunOnce(cm.ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", cm.schedule, err)
	}

	cm.RunOnce(cm.ctx)
	cm.cron.Start()
	cm.logger.Info("cleanup scheduled", slog.String("schedule", cm.schedule), slog.Int("tasks", len(cm.tasks)))
	return nil
}

// RunOnce executes every task in order. A failing task does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	for _, task := range cm.tasks {
		if ctx.Err() != nil {
			return
		}

		taskCtx, cancel := context.WithTimeout(ctx, cm.timeout)
		removed, err := task.Run(taskCtx)
		cancel()

		if err != nil {
			cm.logger.Error("cleanup task failed", slog.String("task", task.Name), slog.Any("error", err))
			continue
		}
		if removed > 0 {
			cm.logger.Info("cleanup task completed", slog.String("task", task.Name), slog.Int64("rows_deleted", removed))
		}
	}
}

// Stop halts the schedule and waits for a running cleanup to finish.
func (cm *CleanupManager) Stop() {
	cm.mu.Lock()
	if cm.cancel != nil {
		cm.cancel()
	}
	cm.mu.Unlock()

	<-cm.cron.Stop().Done()
	cm.logger.Info("cleanup manager stopped")
}
