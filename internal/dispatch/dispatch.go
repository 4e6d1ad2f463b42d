// Package dispatch runs configured directory tasks one at a time.
package dispatch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"dirworker/internal/archive"
	"dirworker/internal/config"
	"dirworker/internal/units"
	"dirworker/internal/walker"
)

// TaskError is an I/O failure while executing one task. It names the action and path so
// the failing config entry can be found.
type TaskError struct {
	Action config.Action
	Path   string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.Path, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

type DirectoryStats struct {
	FileCount      uint64
	TotalSizeBytes uint64
}

type CleanStats struct {
	Files int
	Dirs  int
}

// Report summarises a Run.
type Report struct {
	Succeeded int
	Failed    []*TaskError
}

func (r *Report) OK() bool {
	return len(r.Failed) == 0
}

type Dispatcher struct {
	out        io.Writer
	logger     *slog.Logger
	backupRoot string
	archive    archive.Options
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithArchiveOptions sets the base options for backups. Each task's exclude patterns
// replace opts.Exclude.
func WithArchiveOptions(opts archive.Options) Option {
	return func(d *Dispatcher) {
		d.archive = opts
	}
}

// New returns a dispatcher printing results to out and writing backups under backupRoot.
func New(out io.Writer, backupRoot string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		out:        out,
		logger:     slog.Default(),
		backupRoot: backupRoot,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.archive.Logger == nil {
		d.archive.Logger = d.logger
	}
	return d
}

// Run executes tasks in order. A failed task is logged and recorded, and the run moves
// on to the next one.
func (d *Dispatcher) Run(tasks []config.Task) *Report {
	report := &Report{}

	for i, task := range tasks {
		logger := d.logger.With("task", i, "action", task.Action.String(), "path", task.Path)
		logger.Debug("Task started")

		if err := d.Execute(task); err != nil {
			var taskErr *TaskError
			if !errors.As(err, &taskErr) {
				taskErr = &TaskError{Action: task.Action, Path: task.Path, Err: err}
			}
			logger.Error("Task failed", "error", taskErr.Err)
			report.Failed = append(report.Failed, taskErr)
			continue
		}

		logger.Debug("Task finished")
		report.Succeeded++
	}

	return report
}

// Execute performs a single task. Failures are returned as *TaskError.
func (d *Dispatcher) Execute(task config.Task) error {
	var err error

	switch task.Action {
	case config.ActionList:
		err = d.list(task)
	case config.ActionAnalyze:
		err = d.analyze(task)
	case config.ActionBackup:
		err = d.backup(task)
	case config.ActionClean:
		err = d.clean(task)
	default:
		err = fmt.Errorf("%w: %v", config.ErrUnknownAction, task.Action)
	}

	if err != nil {
		return &TaskError{Action: task.Action, Path: task.Path, Err: err}
	}
	return nil
}

// walkOptions maps a task onto the walker: include_directories both recurses and yields
// directory entries.
func walkOptions(task config.Task) walker.Options {
	return walker.Options{
		Recursive:   task.IncludeDirectories,
		IncludeDirs: task.IncludeDirectories,
		Exclude:     task.Exclude,
	}
}

func (d *Dispatcher) list(task config.Task) error {
	for entry, err := range walker.Walk(task.Path, walkOptions(task)) {
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(d.out, entry.Path); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) analyze(task config.Task) error {
	stats, err := Analyze(task.Path, walkOptions(task))
	if err != nil {
		return err
	}

	fmt.Fprintf(d.out, "Analyzing directory (subdirs=%t): '%s'\n", task.IncludeDirectories, task.Path)
	fmt.Fprintf(d.out, "Number of files: %d\n", stats.FileCount)
	fmt.Fprintf(d.out, "Total size: %d bytes (%s)\n\n", stats.TotalSizeBytes, units.FormatSize(int64(stats.TotalSizeBytes)))
	return nil
}

// Analyze counts the files a walk yields and sums their sizes. Directories count for
// nothing.
func Analyze(root string, opts walker.Options) (DirectoryStats, error) {
	var stats DirectoryStats
	for entry, err := range walker.Walk(root, opts) {
		if err != nil {
			return DirectoryStats{}, err
		}
		if entry.IsDir {
			continue
		}
		stats.FileCount++
		stats.TotalSizeBytes += uint64(entry.Size)
	}
	return stats, nil
}

func (d *Dispatcher) backup(task config.Task) error {
	opts := d.archive
	opts.Exclude = task.Exclude

	res, err := archive.Create(task.Path, d.backupRoot, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(d.out, "Backup of '%s' written to '%s' (%d files, %s)\n",
		task.Path, res.Path, res.Files, units.FormatSize(res.Bytes))
	d.logger.Info("Backup complete", "path", task.Path, "archive", res.Path, "digest", res.Digest)
	return nil
}

func (d *Dispatcher) clean(task config.Task) error {
	stats, err := Clean(task.Path, walkOptions(task), d.out, d.logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(d.out, "Cleaned '%s': removed %d files, %d directories\n", task.Path, stats.Files, stats.Dirs)
	return nil
}

// removeEntry is swapped out in tests to simulate failing deletes.
var removeEntry = os.Remove

// Clean deletes every entry a walk of root yields and prints each action to out; root
// itself stays. Entries are collected first and removed in reverse walk order, so each
// directory is empty by the time it is removed. Without opts.Recursive the top-level
// directories are reported as skipped. A directory still holding excluded entries is
// skipped too.
func Clean(root string, opts walker.Options, out io.Writer, logger *slog.Logger) (CleanStats, error) {
	var stats CleanStats
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}

	walkOpts := opts
	if !opts.Recursive {
		walkOpts.IncludeDirs = true
	}

	entries, err := walker.Collect(root, walkOpts)
	if err != nil {
		return stats, err
	}

	for _, entry := range slices.Backward(entries) {
		if entry.IsDir {
			skip := !opts.Recursive
			if !skip && len(opts.Exclude) > 0 {
				remaining, err := os.ReadDir(entry.Path)
				if err != nil {
					return stats, fmt.Errorf("failed to read directory %s: %w", entry.Path, err)
				}
				skip = len(remaining) > 0
			}
			if skip {
				fmt.Fprintf(out, "Skipping directory: '%s'\n", entry.Path)
				continue
			}
			fmt.Fprintf(out, "Removing directory: '%s'\n", entry.Path)
		} else {
			fmt.Fprintf(out, "Removing file: '%s'\n", entry.Path)
		}

		if err := removeEntry(entry.Path); err != nil {
			return stats, fmt.Errorf("failed to remove %s: %w", entry.Path, err)
		}
		logger.Debug("Removed", "path", entry.Path, "dir", entry.IsDir)

		if entry.IsDir {
			stats.Dirs++
		} else {
			stats.Files++
		}
	}

	return stats, nil
}
