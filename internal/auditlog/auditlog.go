// Package auditlog writes the per-run import log: a plain text file with one
// timestamped line per event, appended in call order and never rewritten.
package auditlog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	lineTimeLayout = "2006-01-02 15:04:05"
	fileTimeLayout = "2006-01-02_15-04-05"

	maxNameAttempts = 1000
)

var reUnsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Dir creates run logs under a single directory.
type Dir struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// NewDir returns a Dir rooted at root, creating the directory if needed.
func NewDir(root string, logger *slog.Logger) (*Dir, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	return &Dir{root: root, logger: logger, now: time.Now}, nil
}

// Root returns the directory holding the logs.
func (d *Dir) Root() string { return d.root }

// Open creates the log for a run importing fileName. The file is named
// "<base>_<timestamp>.txt"; when that name is taken a numeric suffix is added,
// so two runs never share a file.
func (d *Dir) Open(fileName string) (*Log, error) {
	base := baseName(fileName)
	stamp := d.now().Format(fileTimeLayout)

	for i := 1; i <= maxNameAttempts; i++ {
		name := fmt.Sprintf("%s_%s.txt", base, stamp)
		if i > 1 {
			name = fmt.Sprintf("%s_%s_%d.txt", base, stamp, i)
		}
		path := filepath.Join(d.root, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		return &Log{f: f, path: path, logger: d.logger, now: d.now}, nil
	}
	return nil, fmt.Errorf("open audit log: no free name for %q", base)
}

// baseName reduces an uploaded file name to a safe file name stem.
func baseName(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Trim(reUnsafeName.ReplaceAllString(base, "_"), "._")
	if base == "" {
		return "import"
	}
	return base
}

// Log is one run's audit trail. A nil *Log discards everything.
type Log struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	logger *slog.Logger
	now    func() time.Time
	err    error
}

// Path returns the file path of the log, or "" for a nil Log.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Println appends one line. An empty msg writes a blank separator line.
// Write failures never reach the caller: the first one is reported to the
// diagnostic logger and kept for Err.
func (l *Log) Println(msg string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	line := "\n"
	if msg != "" {
		line = "[" + l.now().Format(lineTimeLayout) + "] " + msg + "\n"
	}
	if _, err := l.f.WriteString(line); err != nil && l.err == nil {
		l.err = err
		l.logger.Warn("audit log write failed", "path", l.path, "error", err)
	}
}

// Printf appends one formatted line.
func (l *Log) Printf(format string, args ...any) {
	l.Println(fmt.Sprintf(format, args...))
}

// Err returns the first write error, if any.
func (l *Log) Err() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close flushes the file to disk and closes it.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Sync(); err != nil {
		l.f.Close()
		return fmt.Errorf("sync audit log: %w", err)
	}
	return l.f.Close()
}
