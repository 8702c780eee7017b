package scheduler

import (
	"context"
	"fmt"
	"sync"

	"PriceSentinel/internal/feed"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Feed is the part of feed.Feed the scheduler drives.
type Feed interface {
	Name() string
	Update(ctx context.Context) error
	Summary() (feed.Summary, error)
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron   *cron.Cron
	Feeds  []Feed
	Logger *zap.Logger
	Ctx    context.Context
}

// NewScheduler creates a new Scheduler. Runs of a task that is still busy are skipped.
func NewScheduler(ctx context.Context, feeds []Feed, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Feeds:  feeds,
		Logger: logger,
		Ctx:    ctx,
	}
}

// RegisterAll registers the update and report tasks.
func (s *Scheduler) RegisterAll(updateCron, reportCron string) error {
	if _, err := s.Cron.AddFunc(updateCron, s.updateTask); err != nil {
		return fmt.Errorf("register update task: %w", err)
	}
	if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("scheduler started", zap.Int("feeds", len(s.Feeds)))
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info("scheduler stopped")
}

// RunUpdateNow updates every feed immediately (for RUN_ON_START).
func (s *Scheduler) RunUpdateNow() {
	s.updateTask()
}

// RunReportNow logs every feed's summary immediately.
func (s *Scheduler) RunReportNow() {
	s.reportTask()
}

func (s *Scheduler) updateTask() {
	var wg sync.WaitGroup
	for _, f := range s.Feeds {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Update(s.Ctx); err != nil {
				s.Logger.Error("update feed", zap.String("feed", f.Name()), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) reportTask() {
	for _, f := range s.Feeds {
		sum, err := f.Summary()
		if err != nil {
			s.Logger.Warn("summarize feed", zap.String("feed", f.Name()), zap.Error(err))
			continue
		}
		s.Logger.Info("feed summary",
			zap.String("feed", sum.Feed),
			zap.Int("samples", sum.Samples),
			zap.Stringer("current", sum.Current),
			zap.Stringer("high", sum.High),
			zap.Stringer("low", sum.Low),
			zap.Stringer("mean", sum.Mean),
			zap.Stringer("position", sum.Position))
	}
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
