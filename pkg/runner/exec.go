package runner

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultHarness      = "./run_and_get_coverage.sh"
	DefaultTimeout      = 10 * time.Second
	DefaultInputName    = "test.cnf"
	DefaultReportIndex  = "gcov_output.txt"
	DefaultSanitizerLog = "sanitizer_output.txt"

	// waitDelay bounds how long Run waits for the harness's output
	// pipes after the process was killed.
	waitDelay = time.Second
)

// Exec runs the subject through a harness script:
//
//	<harness> <subject> <input file> <reset: 0|1>
//
// executed in a work directory. The harness writes the paths of the
// coverage reports, one per line, to the report index file and the
// sanitizer diagnostics to the sanitizer log.
type Exec struct {
	subject      string
	harness      string
	workDir      string
	timeout      time.Duration
	inputName    string
	reportIndex  string
	sanitizerLog string
	limiter      *rate.Limiter
	logger       logrus.FieldLogger
}

type ExecOption func(e *Exec)

func WithHarness(path string) ExecOption {
	return func(e *Exec) {
		e.harness = path
	}
}

func WithWorkDir(dir string) ExecOption {
	return func(e *Exec) {
		e.workDir = dir
	}
}

func WithTimeout(d time.Duration) ExecOption {
	return func(e *Exec) {
		e.timeout = d
	}
}

// WithRateLimit caps how often the subject is started.
func WithRateLimit(limiter *rate.Limiter) ExecOption {
	return func(e *Exec) {
		e.limiter = limiter
	}
}

func WithLogger(logger logrus.FieldLogger) ExecOption {
	return func(e *Exec) {
		e.logger = logger
	}
}

func NewExec(subject string, options ...ExecOption) (*Exec, error) {
	e := &Exec{
		subject:      subject,
		harness:      DefaultHarness,
		workDir:      ".",
		timeout:      DefaultTimeout,
		inputName:    DefaultInputName,
		reportIndex:  DefaultReportIndex,
		sanitizerLog: DefaultSanitizerLog,
	}
	for _, option := range options {
		option(e)
	}
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	if e.subject == "" {
		return nil, errors.New("subject path must be set")
	}
	if e.timeout <= 0 {
		return nil, errors.Errorf("invalid subject timeout %s", e.timeout)
	}
	info, err := os.Stat(e.workDir)
	if err != nil {
		return nil, errors.Wrap(err, "checking work directory")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("work directory %s is not a directory", e.workDir)
	}
	return e, nil
}

// InputPath returns where Run writes the subject input.
func (e *Exec) InputPath() string {
	return filepath.Join(e.workDir, e.inputName)
}

func (e *Exec) Run(ctx context.Context, req Request) (*Result, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "waiting for execution slot")
		}
	}

	indexPath := filepath.Join(e.workDir, e.reportIndex)
	logPath := filepath.Join(e.workDir, e.sanitizerLog)
	for _, stale := range []string{indexPath, logPath} {
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "removing stale artifact %s", stale)
		}
	}
	if err := os.WriteFile(e.InputPath(), req.Input, 0o644); err != nil {
		return nil, errors.Wrap(err, "writing subject input")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reset := "0"
	if req.ResetCoverage {
		reset = "1"
	}
	cmd := exec.CommandContext(runCtx, e.harness, e.subject, e.InputPath(), reset)
	cmd.Dir = e.workDir
	cmd.WaitDelay = waitDelay
	// The subject is a child of the harness, so the whole group is
	// killed on timeout. A surviving subject would flush its counters
	// into a later round's coverage.
	killGroupOnCancel(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		e.logger.WithField("elapsed", elapsed).Debug("subject timed out")
		return nil, ErrTimeout
	}

	result := &Result{
		Stdout:       stdout.Bytes(),
		Stderr:       stderr.Bytes(),
		SanitizerLog: logPath,
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errors.Wrapf(err, "running harness %s", e.harness)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	reports, err := e.readReportIndex(indexPath)
	if err != nil {
		return nil, err
	}
	result.CoverageReports = reports

	e.logger.WithFields(logrus.Fields{
		"exit":    result.ExitCode,
		"elapsed": elapsed,
		"reports": len(reports),
	}).Debug("subject finished")
	return result, nil
}

// readReportIndex returns the report paths listed in the index. Relative
// paths are resolved against the work directory. A missing index means
// no coverage was written.
func (e *Exec) readReportIndex(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "opening coverage report index")
	}
	defer f.Close()

	var reports []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		for _, name := range strings.Fields(sc.Text()) {
			if !filepath.IsAbs(name) {
				name = filepath.Join(e.workDir, name)
			}
			reports = append(reports, name)
		}
	}
	return reports, errors.Wrap(sc.Err(), "reading coverage report index")
}
