// Package scheduler runs the periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"propvest/pkg/config"
	"propvest/pkg/logger"
)

type StaleExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

type InvestmentMaturer interface {
	MatureDue(ctx context.Context) (int, error)
}

type ChainVerifier interface {
	VerifyAll(ctx context.Context) ([]int64, error)
}

// JobTimeout bounds a single job run.
const JobTimeout = 10 * time.Minute

type Scheduler struct {
	cron         *cron.Cron
	transactions StaleExpirer
	investments  InvestmentMaturer
	ledger       ChainVerifier
	logger       logger.Logger
}

func NewScheduler(cfg config.SchedulerConfig, tx StaleExpirer, inv InvestmentMaturer, l ChainVerifier, log logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		transactions: tx,
		investments:  inv,
		ledger:       l,
		logger:       log,
	}

	jobs := []struct {
		spec string
		name string
		run  func(ctx context.Context)
	}{
		{cfg.ExpireStale, "expire_stale_transactions", s.ExpireStaleTransactions},
		{cfg.MatureInvestments, "mature_investments", s.MatureInvestments},
		{cfg.VerifyLedger, "verify_ledger", s.VerifyLedger},
	}
	for _, job := range jobs {
		run := job.run
		if _, err := s.cron.AddFunc(job.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
			defer cancel()
			run(ctx)
		}); err != nil {
			return nil, err
		}
		s.logger.Info("Cron job registered", map[string]interface{}{"job": job.name, "spec": job.spec})
	}
	return s, nil
}

func (s *Scheduler) ExpireStaleTransactions(ctx context.Context) {
	n, err := s.transactions.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("Expiring stale transactions failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if n > 0 {
		s.logger.Info("Stale transactions expired", map[string]interface{}{"count": n})
	}
}

func (s *Scheduler) MatureInvestments(ctx context.Context) {
	n, err := s.investments.MatureDue(ctx)
	if err != nil {
		s.logger.Error("Maturing investments failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if n > 0 {
		s.logger.Info("Investments matured", map[string]interface{}{"count": n})
	}
}

func (s *Scheduler) VerifyLedger(ctx context.Context) {
	broken, err := s.ledger.VerifyAll(ctx)
	if err != nil {
		s.logger.Error("Ledger verification failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if len(broken) > 0 {
		s.logger.Error("Ledger chain broken", map[string]interface{}{"wallet_ids": broken})
		return
	}
	s.logger.Info("Ledger chain verified", nil)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Cron scheduler started", nil)
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Cron scheduler stopped", nil)
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
