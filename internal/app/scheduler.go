package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PackageExpirer закрывает пакеты с истёкшим окном
type PackageExpirer interface {
	ExpirePackages(ctx context.Context) (int, error)
}

// Scheduler фоновая задача: периодически переводит истёкшие пакеты в expired
type Scheduler struct {
	expirer  PackageExpirer
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler создаёт новый планировщик
func NewScheduler(expirer PackageExpirer, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
	}
}

// Run блокируется до отмены ctx
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting package expiry sweep", zap.Duration("interval", s.interval))

	// Первый запуск сразу при старте
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("Package expiry sweep stopped")
			return nil
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	n, err := s.expirer.ExpirePackages(ctx)
	if err != nil {
		// ошибка одного прохода не останавливает планировщик
		s.logger.Error("Failed to expire packages", zap.Error(err))
		return
	}
	s.logger.Debug("Package expiry sweep completed", zap.Int("expired", n))
}
