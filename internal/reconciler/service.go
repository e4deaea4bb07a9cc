// Package reconciler imports bank statements into a company's books and
// reconciles them against the cash book.
//
// The Service ties the pipeline together:
//
//	detect -> parse -> bank rules -> duplicate filter -> persist
//	unmatched lines + open ledger -> auto-match -> confirm
//
// Every multi-row write runs in one SQL transaction and pushes a typed
// descriptor onto the command log so the last action can be undone.
//
// Example usage:
//
//	svc, err := reconciler.NewService(st, registry, reconciler.DefaultConfig(), log)
//	result, err := svc.Import(ctx, "statement.csv")
//	proposals, err := svc.AutoMatch(ctx)
//	confirmed, err := svc.ConfirmMatches(ctx, proposals)
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexledger-reconciler/internal/company"
	"nexledger-reconciler/internal/dedup"
	"nexledger-reconciler/internal/matcher"
	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/internal/parsers"
	"nexledger-reconciler/internal/rules"
	"nexledger-reconciler/internal/store"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// User is recorded in the audit log and on imported transactions
	User string

	// DedupKey selects the duplicate key for imports
	DedupKey dedup.KeyMode

	// MaxUndoDepth bounds the command log; 0 keeps every entry
	MaxUndoDepth int

	// PreviewRows is how many staged rows StageRaw returns
	PreviewRows int

	// Matching holds the auto-match thresholds
	Matching *matcher.MatchingConfig
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		User:         "nexledger",
		DedupKey:     dedup.KeyDateDescription,
		MaxUndoDepth: 0,
		PreviewRows:  10,
		Matching:     matcher.DefaultMatchingConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.User) == "" {
		return fmt.Errorf("audit user cannot be empty")
	}
	if _, err := dedup.ParseKeyMode(string(c.DedupKey)); err != nil {
		return err
	}
	if c.MaxUndoDepth < 0 {
		return fmt.Errorf("max undo depth cannot be negative, got %d", c.MaxUndoDepth)
	}
	if c.PreviewRows < 0 {
		return fmt.Errorf("preview rows cannot be negative, got %d", c.PreviewRows)
	}
	if c.Matching == nil {
		return fmt.Errorf("matching configuration is required")
	}
	return c.Matching.Validate()
}

// Service runs imports, matching and undo against one company store
type Service struct {
	store    *store.Store
	registry *parsers.Registry
	config   *Config
	logger   logger.Logger
	now      func() time.Time
	newID    func() string
}

// NewService creates a reconciliation service over an open store
func NewService(st *store.Store, registry *parsers.Registry, config *Config, log logger.Logger) (*Service, error) {
	if st == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "store", nil, nil).
			WithSuggestion("Open the company database before creating the service")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", config, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if registry == nil {
		registry = parsers.NewRegistry(nil, nil, log)
	}

	return &Service{
		store:    st,
		registry: registry,
		config:   config,
		logger:   log.WithCompany(st.Company().ID).WithComponent("reconciler"),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}, nil
}

// Company returns the company the service operates on
func (s *Service) Company() company.Context {
	return s.store.Company()
}

// GetConfiguration returns the current configuration
func (s *Service) GetConfiguration() *Config {
	return s.config
}

// SetMatchingConfig replaces the auto-match thresholds
func (s *Service) SetMatchingConfig(config *matcher.MatchingConfig) error {
	if err := config.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config.String(), err)
	}
	s.config.Matching = config
	return nil
}

// ListLedger returns cash book entries
func (s *Service) ListLedger(ctx context.Context, filter store.LedgerFilter) ([]models.LedgerEntry, error) {
	return s.store.ListLedgerEntries(ctx, filter)
}

// GetLedgerEntry returns one cash book entry
func (s *Service) GetLedgerEntry(ctx context.Context, id int64) (models.LedgerEntry, error) {
	return s.store.GetLedgerEntry(ctx, id)
}

// ListStatementLines returns imported statement lines
func (s *Service) ListStatementLines(ctx context.Context, filter store.LineFilter) ([]models.StatementLine, error) {
	return s.store.ListStatementLines(ctx, filter)
}

// ListMatches returns confirmed match records
func (s *Service) ListMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	return s.store.ListMatches(ctx, limit)
}

// ListUndo returns the command log, newest first
func (s *Service) ListUndo(ctx context.Context, limit int) ([]models.UndoAction, error) {
	return s.store.ListUndo(ctx, limit)
}

// ListAudit returns the audit log, newest first
func (s *Service) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return s.store.ListAudit(ctx, limit)
}

// ListFeeds returns staged raw bank feed rows
func (s *Service) ListFeeds(ctx context.Context, unpostedOnly bool, limit int) ([]models.RawFeed, error) {
	return s.store.ListFeeds(ctx, unpostedOnly, limit)
}

// AddRule stores a new bank rule
func (s *Service) AddRule(ctx context.Context, rule models.BankRule) (models.BankRule, error) {
	if err := rule.Validate(); err != nil {
		return rule, errors.ValidationError(errors.CodeMissingField, "rule", rule.Pattern, err)
	}
	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		id, err := q.InsertRule(ctx, rule)
		if err != nil {
			return err
		}
		rule.ID = id
		return q.AppendAudit(ctx, s.config.User, fmt.Sprintf("Bank rule %d added: %q -> %s", id, rule.Pattern, rule.Action))
	})
	return rule, err
}

// ListRules returns every bank rule ordered by id
func (s *Service) ListRules(ctx context.Context) ([]models.BankRule, error) {
	return s.store.ListRules(ctx)
}

// SetRuleEnabled enables or disables a bank rule
func (s *Service) SetRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.SetRuleEnabled(ctx, id, enabled); err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		return q.AppendAudit(ctx, s.config.User, fmt.Sprintf("Bank rule %d %s", id, state))
	})
}

func (s *Service) rulesEngine(ctx context.Context) (*rules.Engine, error) {
	stored, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(stored), nil
}
