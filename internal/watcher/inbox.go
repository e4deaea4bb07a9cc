// Package watcher imports statements dropped into an inbox directory and
// runs auto-match on a schedule.
package watcher

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nexledger-reconciler/internal/importer"
	"nexledger-reconciler/internal/parsers"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

// Submitter accepts import jobs.
type Submitter interface {
	Submit(ctx context.Context, job importer.Job) (<-chan importer.Outcome, error)
}

// InboxOptions configures an InboxWatcher.
type InboxOptions struct {
	// Debounce is the quiet period after the last write before a file is imported.
	Debounce time.Duration
	// RetryBusy is how long to wait before resubmitting when the worker is busy.
	RetryBusy time.Duration
	// ScanExisting imports supported files already in the inbox at startup.
	ScanExisting bool
	StageOnly    bool
	// OnOutcome receives the outcome of every submitted job.
	OnOutcome func(importer.Outcome)
}

// DefaultInboxOptions returns the options used by the watch command.
func DefaultInboxOptions() InboxOptions {
	return InboxOptions{
		Debounce:     2 * time.Second,
		RetryBusy:    5 * time.Second,
		ScanExisting: true,
	}
}

// InboxWatcher submits statement files written to a directory.
type InboxWatcher struct {
	dir       string
	submitter Submitter
	opts      InboxOptions
	logger    logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	jobs    sync.WaitGroup
}

// NewInboxWatcher creates a watcher for dir.
func NewInboxWatcher(dir string, submitter Submitter, opts InboxOptions, log logger.Logger) *InboxWatcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultInboxOptions().Debounce
	}
	if opts.RetryBusy <= 0 {
		opts.RetryBusy = DefaultInboxOptions().RetryBusy
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &InboxWatcher{
		dir:       dir,
		submitter: submitter,
		opts:      opts,
		logger:    log.WithComponent("inbox").WithField("dir", dir),
		pending:   make(map[string]*time.Timer),
		ready:     make(chan string, 16),
	}
}

// Run watches the inbox until ctx is done.
func (w *InboxWatcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return errors.FileError(errors.CodeDirectoryError, w.dir, err)
	}
	if !info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, w.dir, stderrors.New("not a directory"))
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "start inbox watcher", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return errors.FileError(errors.CodeDirectoryError, w.dir, err)
	}
	w.logger.Info("Watching inbox")

	if w.opts.ScanExisting {
		w.scanExisting(ctx)
	}

	defer w.stopTimers()
	defer w.jobs.Wait()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Inbox watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ctx, ev.Name, w.opts.Debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Inbox watch error")

		case path := <-w.ready:
			w.submit(ctx, path)
		}
	}
}

func (w *InboxWatcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.WithError(err).Warn("Could not list inbox")
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.schedule(ctx, filepath.Join(w.dir, name), w.opts.Debounce)
	}
}

// schedule (re)arms the debounce timer for path.
func (w *InboxWatcher) schedule(ctx context.Context, path string, delay time.Duration) {
	if !parsers.Supported(path) {
		w.logger.WithField("file", filepath.Base(path)).Debug("Ignoring unsupported file")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.rearmLocked(ctx, path, delay)
}

// rearmLocked replaces the pending timer for path. A timer that already fired
// but has not taken the lock yet finds itself replaced and sends nothing.
func (w *InboxWatcher) rearmLocked(ctx context.Context, path string, delay time.Duration) {
	if old, ok := w.pending[path]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		w.mu.Lock()
		if w.pending[path] != t {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
	w.pending[path] = t
}

func (w *InboxWatcher) submit(ctx context.Context, path string) {
	log := w.logger.WithField("file", filepath.Base(path))

	ch, err := w.submitter.Submit(ctx, importer.Job{Paths: []string{path}, StageOnly: w.opts.StageOnly})
	if stderrors.Is(err, importer.ErrBusy) {
		log.Debug("Import worker busy, retrying later")
		w.schedule(ctx, path, w.opts.RetryBusy)
		return
	}
	if err != nil {
		log.WithError(err).Error("Could not submit import")
		return
	}

	log.Info("Import submitted")
	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		out := <-ch
		if out.Err != nil {
			log.WithError(out.Err).Error("Inbox import failed")
		}
		if w.opts.OnOutcome != nil {
			w.opts.OnOutcome(out)
		}
	}()
}

func (w *InboxWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
