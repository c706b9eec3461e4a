// Package auditlog appends a JSONL record for every tool call the agent
// executes. Writes are async and never block dispatch; a full buffer drops
// records with a warning.
package auditlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Record is one executed tool call.
type Record struct {
	Time         time.Time `json:"time"`
	Tool         string    `json:"tool"`
	TabID        string    `json:"tab_id,omitempty"`
	OK           bool      `json:"ok"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
}

// Writer appends records to date-organized JSONL files with size rotation.
type Writer struct {
	baseDir   string
	maxSizeMB int

	writeCh chan Record
	done    chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

// NewWriter starts an async audit writer rooted at baseDir.
func NewWriter(baseDir string, bufferSize, maxSizeMB int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	w := &Writer{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan Record, bufferSize),
		done:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Write queues a record. It never blocks; a full buffer drops the record.
func (w *Writer) Write(rec Record) error {
	select {
	case <-w.done:
		return fmt.Errorf("audit writer is closed")
	default:
	}
	select {
	case w.writeCh <- rec:
		return nil
	default:
		slog.Warn("audit write buffer full, dropping record", "tool", rec.Tool)
		return fmt.Errorf("buffer full")
	}
}

// Close stops the writer, flushing whatever is already queued.
func (w *Writer) Close() error {
	close(w.done)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case rec := <-w.writeCh:
			w.writeRecord(rec)
		case <-timeout:
			slog.Warn("audit writer close timeout, some records may be lost")
			goto done
		default:
			goto done
		}
	}

done:
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		return w.logger.Close()
	}
	return nil
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case rec := <-w.writeCh:
			w.writeRecord(rec)
		case <-w.done:
			return
		}
	}
}

func (w *Writer) writeRecord(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("audit record marshal failed", "error", err, "tool", rec.Tool)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	currentDate := time.Now().UTC().Format("2006-01-02")
	if currentDate != w.currentDate || w.logger == nil {
		w.rotateForDate(currentDate)
	}
	if w.logger == nil {
		return
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("audit record write failed", "error", err, "tool", rec.Tool)
	}
}

func (w *Writer) rotateForDate(date string) {
	if w.logger != nil {
		_ = w.logger.Close()
	}

	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("audit directory create failed", "error", err, "dir", dir)
		w.logger = nil
		return
	}

	filename := filepath.Join(dir, "tool_calls.jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		LocalTime:  false,
	}
	w.currentDate = date
	slog.Info("audit log opened", "file", filename)
}
