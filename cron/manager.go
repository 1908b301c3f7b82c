package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
)

var _ types.LifecycleManager = (*Manager)(nil)

// Manager runs housekeeping jobs on a seconds-resolution schedule.
type Manager struct {
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	timezone        *time.Location
	jobs            map[string]*types.JobEntry
	state           atomic.Value
	mu              sync.RWMutex
	shutdownTimeout time.Duration
}

func NewManager(config *types.CronConfig, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	timezone := time.UTC
	if config != nil && config.Timezone != "" {
		location, err := time.LoadLocation(config.Timezone)
		if err != nil {
			logger.Warn("Unknown cron timezone, using UTC",
				zap.String("timezone", config.Timezone),
				zap.Error(err))
		} else {
			timezone = location
		}
	}

	cronL := safeCronLogger{
		logger: logger,
	}

	manager := &Manager{
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronL), cron.SkipIfStillRunning(cronL)),
		),
		timezone:        timezone,
		jobs:            make(map[string]*types.JobEntry),
		shutdownTimeout: 10 * time.Second,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if spec == "" {
		return types.ErrCronExpressionInvalid
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.ErrCronJobExists
	}

	entryID, err := m.cron.AddFunc(spec, m.wrapJob(jobName, job))
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	entry := &types.JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		AddedAt: time.Now(),
	}
	if cronEntry := m.cron.Entry(entryID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
	m.jobs[jobName] = entry

	m.logger.Info("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

func (m *Manager) Start() error {
	if !m.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrCronIsRunning
	}

	m.cron.Start()
	m.metrics.Gauge("cron_scheduler_running", nil).Set(1)
	m.logger.Info("Cron manager started", zap.String("timezone", m.timezone.String()))
	return nil
}

// Stop waits for running jobs, at most shutdownTimeout.
func (m *Manager) Stop() error {
	if !m.state.CompareAndSwap(StateRunning, StateStopped) {
		return types.ErrCronNotRunning
	}

	stopCtx := m.cron.Stop()
	m.metrics.Gauge("cron_scheduler_running", nil).Set(0)

	timer := time.NewTimer(m.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopCtx.Done():
		m.logger.Info("Cron scheduler stopped gracefully")
		return nil
	case <-timer.C:
		m.logger.Warn("Cron manager stop timeout, some jobs are still running")
		return types.WrapError(context.DeadlineExceeded, "cron stop")
	}
}

func (m *Manager) IsRunning() bool {
	return m.state.Load().(State) == StateRunning
}

// Jobs returns a snapshot of every registered job ordered by name.
func (m *Manager) Jobs() []types.JobEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]types.JobEntry, 0, len(m.jobs))
	for _, entry := range m.jobs {
		jobs = append(jobs, *entry)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].Name < jobs[j].Name
	})
	return jobs
}

func (m *Manager) wrapJob(jobName string, job func()) func() {
	return func() {
		startTime := time.Now()
		m.logger.Debug("Cron job started", zap.String("job_name", jobName))

		err := runJob(job)
		duration := time.Since(startTime)

		result := "success"
		if err != nil {
			result = "error"
		}

		m.metrics.Counter("cron_job_executions_total", map[string]string{
			"job_name": jobName,
			"result":   result,
		}).Inc()
		m.metrics.Histogram("cron_job_duration_seconds",
			[]float64{0.001, 0.01, 0.1, 1.0, 10.0},
			map[string]string{"job_name": jobName},
		).Observe(duration.Seconds())

		m.updateJobStats(jobName, startTime, duration, err)

		if err != nil {
			m.logger.Error("Cron job failed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration),
				zap.Error(err))
			return
		}

		m.logger.Debug("Cron job completed",
			zap.String("job_name", jobName),
			zap.Duration("duration", duration))
	}
}

func runJob(job func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrCronJobFailed, "job panic: %v\n%s", r, debug.Stack())
		}
	}()

	job()
	return nil
}

func (m *Manager) updateJobStats(jobName string, startTime time.Time, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return
	}

	entry.LastRun = startTime
	entry.LastDuration = duration
	entry.TotalDuration += duration
	entry.RunCount++
	entry.AvgDuration = entry.TotalDuration / time.Duration(entry.RunCount)
	entry.Error = err

	if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
}

type safeCronLogger struct {
	logger types.Logger
}

func (l safeCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l safeCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	result := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		result = append(result, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return result
}
