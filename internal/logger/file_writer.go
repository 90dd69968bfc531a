package logger

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// LogFilePermissions is the default file permissions for log files (rw-------)
	LogFilePermissions = 0o600

	defaultBufferSize    = 32 * 1024
	defaultFlushInterval = 5 * time.Second
)

// BufferedFileWriter is a goroutine-safe buffered log file writer with periodic flushing.
// Reopen supports external rotation tools that move the file and signal SIGHUP.
type BufferedFileWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *bufio.Writer
	stop     chan struct{}
	done     chan struct{}
	interval time.Duration
	closed   bool
}

// NewBufferedFileWriter opens path in append mode and starts the auto-flush loop.
// An interval <= 0 uses the default of five seconds.
func NewBufferedFileWriter(path string, interval time.Duration) (*BufferedFileWriter, error) {
	if interval <= 0 {
		interval = defaultFlushInterval
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path from user config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w := &BufferedFileWriter{
		path:     path,
		file:     file,
		writer:   bufio.NewWriterSize(file, defaultBufferSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		interval: interval,
	}
	go w.flushLoop()

	return w, nil
}

func (w *BufferedFileWriter) flushLoop() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.Flush()
		case <-w.stop:
			return
		}
	}
}

// Write implements io.Writer.
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	return w.writer.Write(p)
}

// Flush writes buffered data to the OS.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	return w.writer.Flush()
}

// Reopen flushes and reopens the file at the same path.
func (w *BufferedFileWriter) Reopen() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush before reopen: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path from user config
	if err != nil {
		return fmt.Errorf("failed to reopen log file %s: %w", w.path, err)
	}
	w.file = file
	w.writer.Reset(file)
	return nil
}

// Close stops the flush loop, flushes, syncs and closes the file.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stop)
	w.mu.Unlock()

	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()

	flushErr := w.writer.Flush()
	syncErr := w.file.Sync()
	closeErr := w.file.Close()

	switch {
	case flushErr != nil:
		return flushErr
	case syncErr != nil:
		return syncErr
	default:
		return closeErr
	}
}
