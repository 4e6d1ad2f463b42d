package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dirworker/internal/archive"
	"dirworker/internal/config"
	"dirworker/internal/dispatch"
	"dirworker/internal/logging"
	"dirworker/internal/progress"
)

const (
	exitOK         = 0
	exitFailure    = 1 // bad arguments, bad config, verify found differences
	exitTaskFailed = 2 // at least one task failed, or verify could not read its inputs
)

// exitError carries the process exit code out of a command. A nil err exits silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(viper.New(), stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailure
}

func newRootCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "dirworker <config.json>",
		Short: "Run list, analyze, backup and clean tasks over configured directories",
		Long: `dirworker reads a JSON (or YAML) task file and performs each task in order:

  list     print the entries of a directory
  analyze  count files and total their size
  backup   write a timestamped zip of the directory into backup_root_path
  clean    delete the entries of a directory

include_directories makes list, analyze and clean descend into subdirectories.
A failing task is reported and the remaining tasks still run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(v, stderr)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			return runTasks(args[0], v, logger, stdout, stderr)
		},
	}

	bindGlobalFlags(root.PersistentFlags(), v)
	root.AddCommand(newVerifyCmd(v, stdout, stderr))

	return root
}

// bindGlobalFlags registers the process settings and lets DIRWORKER_* variables set them.
func bindGlobalFlags(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.Bool("progress", false, "Show backup progress on stderr")

	v.BindPFlag("log_level", flags.Lookup("log-level"))
	v.BindPFlag("log_format", flags.Lookup("log-format"))
	v.BindPFlag("progress", flags.Lookup("progress"))

	v.SetEnvPrefix("DIRWORKER")
	v.AutomaticEnv()
}

func newLogger(v *viper.Viper, stderr io.Writer) (*slog.Logger, error) {
	return logging.New(v.GetString("log_level"), v.GetString("log_format"), stderr)
}

func runTasks(configPath string, v *viper.Viper, logger *slog.Logger, stdout, stderr io.Writer) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	logger.Debug("Config loaded", "file", configPath, "tasks", len(cfg.Directories), "backup_root", cfg.BackupRootPath)

	archiveOpts := archive.Options{Logger: logger}
	if v.GetBool("progress") {
		archiveOpts.Callbacks = (&backupProgress{w: stderr}).callbacks()
	}

	d := dispatch.New(stdout, cfg.BackupRootPath,
		dispatch.WithLogger(logger),
		dispatch.WithArchiveOptions(archiveOpts),
	)

	report := d.Run(cfg.Directories)
	if !report.OK() {
		return &exitError{
			code: exitTaskFailed,
			err:  fmt.Errorf("%d of %d tasks failed", len(report.Failed), len(cfg.Directories)),
		}
	}

	return nil
}

// backupProgress drives a progress bar from archive callbacks, one bar per backup.
type backupProgress struct {
	w     io.Writer
	bar   *progress.Bar
	total int
	done  int
}

func (p *backupProgress) callbacks() archive.Callbacks {
	return archive.Callbacks{
		OnScanComplete: func(files int, _ int64) {
			p.total, p.done = files, 0
			p.bar = nil
			if files > 0 {
				p.bar = progress.New(int64(files), p.w)
			}
		},
		OnFileArchived: func(relPath string, _ int64) {
			if p.bar == nil {
				return
			}
			p.done++
			p.bar.Increment(relPath)
			if p.done == p.total {
				p.bar.Finish()
				p.bar = nil
			}
		},
	}
}

func newVerifyCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	var (
		exclude []string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "verify <archive.zip> <source-dir>",
		Short: "Check a backup archive against its source directory",
		Long: `verify re-reads every file in the archive, checks it against the hash recorded
at backup time, and compares the archive with the current source directory.

Exit codes: 0 archive matches, 1 differences or corrupt entries, 2 read failure.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(v, stderr)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}

			archivePath, source := args[0], args[1]
			logger.Debug("Verifying archive", "archive", archivePath, "source", source, "workers", workers)

			result, err := archive.Verify(cmd.Context(), archivePath, source, archive.VerifyOptions{
				Exclude: exclude,
				Workers: workers,
			})
			if err != nil {
				return &exitError{code: exitTaskFailed, err: err}
			}

			fmt.Fprintln(stdout, archive.FormatReport(result))

			if !result.OK() {
				return &exitError{code: exitFailure}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Exclude patterns used when the backup was made")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU()*2, "Number of hashing goroutines")

	return cmd
}
