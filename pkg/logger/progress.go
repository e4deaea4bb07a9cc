package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker reports progress of a multi-file import. Files and rows
// are counted separately since a single PDF can hold thousands of lines.
type ProgressTracker struct {
	logger      Logger
	operation   string
	totalFiles  int
	files       int
	rows        int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.RWMutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string
	TotalFiles  int
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 2 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		totalFiles:  config.TotalFiles,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"files":     config.TotalFiles,
	}).Debug("Starting operation")

	return tracker
}

// FileDone records a finished file and the number of rows it produced.
func (p *ProgressTracker) FileDone(path string, rows int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.files++
	p.rows += int64(rows)

	now := time.Now()
	if p.files == p.totalFiles || now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(Fields{
			"operation": p.operation,
			"file":      path,
			"progress":  fmt.Sprintf("%d/%d", p.files, p.totalFiles),
			"rows":      p.rows,
		}).Info("Progress update")
		p.lastLogTime = now
	}
}

// Complete logs final statistics
func (p *ProgressTracker) Complete() {
	stats := p.GetStats()
	p.logger.WithFields(Fields{
		"operation": stats.Operation,
		"files":     stats.Files,
		"rows":      stats.Rows,
		"duration":  stats.Duration.Round(time.Millisecond).String(),
	}).Info("Operation completed")
}

// CompleteWithError marks the operation as complete with error
func (p *ProgressTracker) CompleteWithError(err error) {
	stats := p.GetStats()
	p.logger.WithError(err).WithFields(Fields{
		"operation": stats.Operation,
		"files":     stats.Files,
		"rows":      stats.Rows,
		"duration":  stats.Duration.Round(time.Millisecond).String(),
	}).Error("Operation completed with error")
}

// GetStats returns current progress statistics
func (p *ProgressTracker) GetStats() ProgressStats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return ProgressStats{
		Operation:  p.operation,
		TotalFiles: p.totalFiles,
		Files:      p.files,
		Rows:       p.rows,
		Duration:   time.Since(p.startTime),
	}
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	TotalFiles int           `json:"total_files"`
	Files      int           `json:"files"`
	Rows       int64         `json:"rows"`
	Duration   time.Duration `json:"duration"`
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	return fmt.Sprintf("%s: %d/%d files, %d rows, elapsed %v",
		ps.Operation, ps.Files, ps.TotalFiles, ps.Rows, ps.Duration.Round(time.Millisecond))
}

// TimedOperation executes fn and logs its duration and outcome.
func TimedOperation(operation string, logger Logger, fn func() error) error {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	start := time.Now()
	err := fn()
	entry := logger.WithFields(Fields{
		"operation": operation,
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	})
	if err != nil {
		entry.WithError(err).Error("Operation failed")
	} else {
		entry.Debug("Operation completed")
	}
	return err
}
