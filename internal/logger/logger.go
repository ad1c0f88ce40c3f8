package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	envLogDir   = "TABLESYNC_LOG_DIR"
	envLogLevel = "TABLESYNC_LOG_LEVEL"
	appDirName  = "tablesync"

	logFileName         = "tablesync.log"
	logFilePrefix       = "tablesync-"
	logRotateMaxBytes   = 10 * 1024 * 1024 // 10MB
	logRotateMaxBackups = 10
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelLabels = [...]string{"调试", "信息", "警告", "错误"}

// ParseLevel accepts debug, info, warn(ing) and error, case-insensitively.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelDebug, false
}

var (
	once     sync.Once
	logMu    sync.Mutex
	logInst  *log.Logger
	logFile  *rotatingFile
	logPath  string
	minLevel = LevelDebug
)

func Init() {
	once.Do(func() {
		path, out := initOutput()
		logMu.Lock()
		defer logMu.Unlock()
		logPath = path
		if lvl, ok := ParseLevel(os.Getenv(envLogLevel)); ok {
			minLevel = lvl
		}
		logInst = log.New(out, "", log.Ldate|log.Ltime|log.Lmicroseconds)
		logInst.Printf("[信息] 日志初始化完成，日志文件：%s", logPath)
	})
}

func Path() string {
	Init()
	logMu.Lock()
	defer logMu.Unlock()
	return logPath
}

// SetLevel drops every line below l.
func SetLevel(l Level) {
	Init()
	logMu.Lock()
	defer logMu.Unlock()
	minLevel = l
}

// SetOutput redirects the logger, e.g. to stderr for the CLI or a buffer in tests.
func SetOutput(w io.Writer) {
	Init()
	logMu.Lock()
	defer logMu.Unlock()
	if logInst != nil {
		logInst.SetOutput(w)
	}
}

func Close() {
	Init()
	logMu.Lock()
	defer logMu.Unlock()
	if logInst != nil {
		logInst.SetOutput(os.Stderr)
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func Debugf(format string, args ...any) {
	printf(LevelDebug, format, args...)
}

func Infof(format string, args ...any) {
	printf(LevelInfo, format, args...)
}

func Warnf(format string, args ...any) {
	printf(LevelWarn, format, args...)
}

func Errorf(format string, args ...any) {
	printf(LevelError, format, args...)
}

func Error(err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		Errorf("%s", msg)
		return
	}
	Errorf("%s；错误链：%s", msg, ErrorChain(err))
}

// ErrorChain flattens err and everything it wraps into "a -> b -> c".
// Joined errors (Unwrap() []error) are followed depth-first.
func ErrorChain(err error) string {
	if err == nil {
		return ""
	}

	var parts []string
	seen := map[string]struct{}{}
	truncated := false
	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		if e == nil || truncated {
			return
		}
		if depth >= 20 {
			truncated = true
			return
		}
		s := e.Error()
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			parts = append(parts, s)
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner, depth+1)
			}
		default:
			walk(errors.Unwrap(e), depth+1)
		}
	}
	walk(err, 0)

	if len(parts) == 0 {
		return err.Error()
	}
	if truncated {
		parts = append(parts, "（错误链过长，已截断）")
	}
	return strings.Join(parts, " -> ")
}

func printf(level Level, format string, args ...any) {
	Init()
	logMu.Lock()
	inst, floor := logInst, minLevel
	logMu.Unlock()
	if inst == nil || level < floor {
		return
	}
	inst.Printf("[%s] %s", levelLabels[level], fmt.Sprintf(format, args...))
}

func logDir() string {
	if dir := strings.TrimSpace(os.Getenv(envLogDir)); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(base) == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, appDirName, "logs")
}

// initOutput falls back to stderr when the log directory is unusable.
func initOutput() (string, io.Writer) {
	dir := logDir()
	path := filepath.Join(dir, logFileName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, os.Stderr
	}
	f, err := openRotatingFile(dir, path, logRotateMaxBytes)
	if err != nil {
		return path, os.Stderr
	}
	logFile = f
	return path, f
}

// rotatingFile appends to path and moves it aside as a timestamped backup
// once the next write would take it past maxBytes.
type rotatingFile struct {
	mu       sync.Mutex
	dir      string
	path     string
	maxBytes int64
	f        *os.File
	size     int64
}

func openRotatingFile(dir, path string, maxBytes int64) (*rotatingFile, error) {
	r := &rotatingFile{dir: dir, path: path, maxBytes: maxBytes}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	r.f, r.size = f, fi.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	if r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate keeps appending to the current file when the rename fails.
func (r *rotatingFile) rotate() error {
	if err := r.f.Close(); err != nil {
		return err
	}
	r.f = nil
	backup := filepath.Join(r.dir, logFilePrefix+time.Now().Format("20060102-150405.000000")+".log")
	renamed := os.Rename(r.path, backup) == nil
	if err := r.open(); err != nil {
		return err
	}
	if renamed {
		cleanupOldLogs(r.dir)
	}
	return nil
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// cleanupOldLogs keeps the newest logRotateMaxBackups backups in dir.
func cleanupOldLogs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var backups []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		backups = append(backups, name)
	}
	if len(backups) <= logRotateMaxBackups {
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	for _, name := range backups[logRotateMaxBackups:] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}
