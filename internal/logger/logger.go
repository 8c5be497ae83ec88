package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	defaultLogger *Logger
	once          sync.Once
)

// Logger wraps the standard log.Logger with date-based file rotation and
// optional asynchronous Elasticsearch shipping
type Logger struct {
	logDir string
	day    string
	file   *os.File
	logger *log.Logger
	es     *esWriter
	mu     sync.Mutex
}

// InitLogger initializes the default logger with the specified log directory.
// esCfg may be nil to disable Elasticsearch shipping.
func InitLogger(logDir string, esCfg *ESConfig) error {
	var err error
	once.Do(func() {
		defaultLogger, err = NewLogger(logDir, esCfg)
		if err != nil {
			return
		}
		// Replace standard log output
		log.SetOutput(defaultLogger)
		log.SetFlags(log.LstdFlags)
	})
	return err
}

// NewLogger creates a new logger instance with date-based file rotation
func NewLogger(logDir string, esCfg *ESConfig) (*Logger, error) {
	// Create log directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		logDir: logDir,
	}

	if esCfg != nil && esCfg.Enabled && len(esCfg.Addresses) > 0 {
		es, err := newESWriter(esCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Elasticsearch log writer: %w", err)
		}
		l.es = es
	}

	// Initialize the log file for today
	if err := l.rotateIfNeeded(); err != nil {
		return nil, err
	}

	return l, nil
}

// rotateIfNeeded opens a fresh day file when the date has rolled over.
func (l *Logger) rotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("20060102")
	if l.day == today && l.file != nil {
		return nil
	}

	if l.file != nil {
		l.file.Close()
	}
	file, err := os.OpenFile(filepath.Join(l.logDir, today+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.file = file
	l.day = today

	writers := []io.Writer{os.Stdout, file}
	if l.es != nil {
		writers = append(writers, l.es)
	}
	l.logger = log.New(io.MultiWriter(writers...), "", log.LstdFlags)
	return nil
}

// Write implements io.Writer. Lines go to stdout, the day file and, when
// enabled, the ES shipper (non-blocking, drops on backpressure).
func (l *Logger) Write(p []byte) (int, error) {
	if err := l.rotateIfNeeded(); err != nil {
		// Rotation failed; at least keep stdout going.
		return os.Stdout.Write(p)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := os.Stdout.Write(p)
	if err != nil {
		return n, err
	}
	if l.es != nil {
		_, _ = l.es.Write(p)
	}
	if l.file != nil {
		if _, err := l.file.Write(p); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Close closes the log file and the Elasticsearch writer
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.es != nil {
		_ = l.es.Close()
		l.es = nil
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	return defaultLogger
}

// emit runs fn against the rotated destination logger under the lock.
func (l *Logger) emit(fn func(*log.Logger)) {
	l.rotateIfNeeded()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logger != nil {
		fn(l.logger)
	}
}

// Printf logs a formatted message
func Printf(format string, v ...interface{}) {
	if defaultLogger == nil {
		log.Printf(format, v...)
		return
	}
	defaultLogger.emit(func(lg *log.Logger) { lg.Printf(format, v...) })
}

// Println logs a message with a newline
func Println(v ...interface{}) {
	if defaultLogger == nil {
		log.Println(v...)
		return
	}
	defaultLogger.emit(func(lg *log.Logger) { lg.Println(v...) })
}

// Fatalf logs a fatal error and exits
func Fatalf(format string, v ...interface{}) {
	if defaultLogger == nil {
		log.Fatalf(format, v...)
		return
	}
	defaultLogger.emit(func(lg *log.Logger) { lg.Fatalf(format, v...) })
}

// Fatal logs a fatal error and exits
func Fatal(v ...interface{}) {
	if defaultLogger == nil {
		log.Fatal(v...)
		return
	}
	defaultLogger.emit(func(lg *log.Logger) { lg.Fatal(v...) })
}
