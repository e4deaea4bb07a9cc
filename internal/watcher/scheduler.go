package watcher

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/pkg/logger"
)

// DefaultMatchSchedule runs auto-match at the top of every hour.
const DefaultMatchSchedule = "0 * * * *"

// Matcher proposes matches for the current company.
type Matcher interface {
	AutoMatch(ctx context.Context) ([]models.ProposedMatch, error)
}

// Scheduler runs auto-match on a cron schedule. Proposals are only logged;
// confirming them stays a user action.
type Scheduler struct {
	cron    *cron.Cron
	matcher Matcher
	spec    string
	timeout time.Duration
	logger  logger.Logger

	// OnProposals, when set, receives each non-empty proposal batch.
	OnProposals func([]models.ProposedMatch)
}

// NewScheduler creates a scheduler for spec (standard 5-field cron syntax).
func NewScheduler(m Matcher, spec string, log logger.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultMatchSchedule
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("scheduler")

	cl := cronLogger{log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{
		cron:    c,
		matcher: m,
		spec:    spec,
		timeout: 5 * time.Minute,
		logger:  log,
	}
}

// Start registers the auto-match job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runScheduled); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithFields(logger.Fields{
		"schedule": s.spec,
		"jobs":     len(s.cron.Entries()),
	}).Info("Auto-match scheduler started")
	return nil
}

// Stop stops the cron loop. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Auto-match scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs one auto-match pass synchronously.
func (s *Scheduler) RunNow(ctx context.Context) ([]models.ProposedMatch, error) {
	proposals, err := s.matcher.AutoMatch(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled auto-match failed")
		return nil, err
	}
	if len(proposals) == 0 {
		s.logger.Debug("Scheduled auto-match found nothing to propose")
		return proposals, nil
	}

	total := decimal.Zero
	for _, p := range proposals {
		total = total.Add(p.Line.Amount.Abs())
		s.logger.WithFields(logger.Fields{
			"line_id":  p.Line.ID,
			"entry_id": p.Entry.ID,
			"score":    p.Score,
			"days":     p.DayDifference,
		}).Debug("Match proposed")
	}
	s.logger.WithFields(logger.Fields{
		"proposals": len(proposals),
		"amount":    total.StringFixed(2),
	}).Info("Matches awaiting confirmation")

	if s.OnProposals != nil {
		s.OnProposals(proposals)
	}
	return proposals, nil
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = s.RunNow(ctx)
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(kv []interface{}) logger.Fields {
	fields := make(logger.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}
