package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultGenerationSchedule запускает генерацию в 03:00 в день открытия нового периода.
const DefaultGenerationSchedule = "0 3 26 * *"

const generationTimeout = 5 * time.Minute

// Scheduler по расписанию генерирует бонусы последнего завершившегося периода.
type Scheduler struct {
	cron     *cron.Cron
	svc      *Service
	schedule string
	logger   *zap.Logger
}

// NewScheduler создаёт планировщик генерации в часовом поясе резолвера периодов.
func NewScheduler(svc *Service, schedule string, logger *zap.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultGenerationSchedule
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(
		cron.WithLocation(svc.Validator().Periods().Location()),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:     c,
		svc:      svc,
		schedule: schedule,
		logger:   logger,
	}
}

// Start регистрирует задачу генерации и запускает планировщик.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runGeneration); err != nil {
		return fmt.Errorf("schedule generation job %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduled period generation job", zap.String("schedule", s.schedule))

	s.cron.Start()
	return nil
}

// Stop останавливает планировщик. Возвращённый контекст завершается, когда выполняющиеся задачи закончатся.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runGeneration() {
	ctx, cancel := context.WithTimeout(context.Background(), generationTimeout)
	defer cancel()

	res, err := s.svc.GenerateLastClosed(ctx)
	if err != nil {
		s.logger.Error("scheduled period generation failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled period generation finished",
		zap.Int("year", res.Year),
		zap.Int("month", res.Month),
		zap.Int("created", len(res.Created)),
	)
}
