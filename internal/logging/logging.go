package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	TimeFormat string `mapstructure:"time_format"`
	Caller     bool   `mapstructure:"caller"`

	// ErrorDir receives error_YYYYMMDD.log with error-level events only.
	// Derived from the data directory, not read from the environment.
	ErrorDir string `mapstructure:"-"`
}

// ValidLevel reports whether level parses as a zerolog level.
func ValidLevel(level string) bool {
	if strings.TrimSpace(level) == "" {
		return true
	}
	_, err := zerolog.ParseLevel(normalizeLevel(level))
	return err == nil
}

func normalizeLevel(level string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	if l == "warning" {
		return "warn"
	}
	return l
}

// NewLogger constructs a zerolog logger from config. Files that cannot be
// opened are skipped with a warning so logging never blocks a job; the
// returned closer releases any opened files.
func NewLogger(cfg Config) (zerolog.Logger, func()) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(normalizeLevel(cfg.Level)); err == nil && cfg.Level != "" {
		level = parsed
	}

	writers := []io.Writer{consoleWriter(cfg)}
	var files []io.Closer
	var warnings []string

	if cfg.File != "" {
		f, err := openAppend(cfg.File)
		if err != nil {
			warnings = append(warnings, err.Error())
		} else {
			files = append(files, f)
			writers = append(writers, f)
		}
	}

	if cfg.ErrorDir != "" {
		daily := newDailyFile(cfg.ErrorDir, time.Now)
		if err := daily.open(time.Now()); err != nil {
			warnings = append(warnings, err.Error())
		} else {
			files = append(files, daily)
			writers = append(writers, &zerolog.FilteredLevelWriter{
				Writer: zerolog.LevelWriterAdapter{Writer: daily},
				Level:  zerolog.ErrorLevel,
			})
		}
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level)
	builder := logger.With().Timestamp()
	if cfg.Caller {
		builder = builder.Caller()
	}
	logger = builder.Logger()

	for _, w := range warnings {
		logger.Warn().Str("reason", w).Msg("log file disabled")
	}

	closer := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	return logger, closer
}

// ErrorLogPath names the daily error log inside dir.
func ErrorLogPath(dir string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("error_%s.log", day.Format("20060102")))
}

// dailyFile appends to ErrorLogPath(dir, day) and moves to a new file when
// the date changes, so long-running processes keep one file per day.
type dailyFile struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
}

func newDailyFile(dir string, now func() time.Time) *dailyFile {
	return &dailyFile{dir: dir, now: now}
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.openLocked(d.now()); err != nil {
		return 0, err
	}
	return d.f.Write(p)
}

func (d *dailyFile) open(at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openLocked(at)
}

func (d *dailyFile) openLocked(at time.Time) error {
	day := at.Format("20060102")
	if d.f != nil && d.day == day {
		return nil
	}
	f, err := openAppend(ErrorLogPath(d.dir, at))
	if err != nil {
		return err
	}
	if d.f != nil {
		_ = d.f.Close()
	}
	d.f, d.day = f, day
	return nil
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

func consoleWriter(cfg Config) io.Writer {
	if strings.EqualFold(cfg.Format, "console") {
		return zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}
	return os.Stdout
}
