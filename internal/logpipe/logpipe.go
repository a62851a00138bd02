// Package logpipe turns raw container output into classified log records,
// fans them out on the event bus, and appends them to per-instance daily
// files.
package logpipe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pyrohost/pyrod/internal/bus"
	"github.com/pyrohost/pyrod/internal/docker"
)

// Record is one processed log line.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

var (
	ansiSGR = regexp.MustCompile("\x1b\\[[0-9;]*m")
	// Engine-supplied timestamp when logs are requested with Timestamps.
	engineTS = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z?\s+`)
	// Leading bracketed tag like "[Server thread/INFO]:".
	bracketTag = regexp.MustCompile(`^\[[^\]]*\]:?\s*`)
	fileLine   = regexp.MustCompile(`^\[([^\]]+)\] \[([^\]]+)\] (.*)$`)
)

// Sanitize strips ANSI SGR sequences, the engine timestamp prefix, and a
// leading bracketed tag. The engine timestamp, when present and parseable,
// becomes the record timestamp.
func Sanitize(raw string) (time.Time, string) {
	ts := time.Now().UTC()

	line := ansiSGR.ReplaceAllString(raw, "")
	if m := engineTS.FindString(line); m != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(m)); err == nil {
			ts = parsed.UTC()
		}
		line = line[len(m):]
	}
	line = bracketTag.ReplaceAllString(line, "")
	return ts, strings.TrimSpace(line)
}

// Classify maps a message to a severity by case-insensitive substring
// search.
func Classify(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "error"), strings.Contains(lower, "exception"), strings.Contains(lower, "fatal"):
		return "error"
	case strings.Contains(lower, "warn"):
		return "warning"
	case strings.Contains(lower, "debug"):
		return "debug"
	default:
		return "info"
	}
}

// Pipeline owns the per-instance log files and the bus fan-out.
type Pipeline struct {
	dir    string
	events *bus.Bus
	logger *slog.Logger
}

func New(dir string, events *bus.Bus, logger *slog.Logger) *Pipeline {
	return &Pipeline{dir: dir, events: events, logger: logger}
}

// Emit publishes a record on the instance's room and appends it to the
// daily file. File errors are logged, never surfaced; losing a line must
// not break the stream.
func (p *Pipeline) Emit(instanceID string, rec Record) {
	p.events.Publish(instanceID, bus.Event{Type: bus.EventLog, Data: rec})

	if err := p.append(instanceID, rec); err != nil {
		p.logger.Warn("append log file", "instance_id", instanceID, "error", err)
	}
}

func (p *Pipeline) append(instanceID string, rec Record) error {
	dir := filepath.Join(p.dir, instanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, rec.Timestamp.UTC().Format("2006-01-02")+".log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "[%s] [%s] %s\n",
		rec.Timestamp.UTC().Format(time.RFC3339), strings.ToUpper(rec.Level), rec.Message)
	return err
}

// AttachOpts tunes a stream attachment.
type AttachOpts struct {
	// ForceLevel overrides classification (install output is always info).
	ForceLevel string
	// OnLine observes every emitted record; the supervisor's sentinel watch
	// hangs off this.
	OnLine func(Record)
}

// Attach consumes a container log stream until it ends or ctx is cancelled.
// Blocking; callers run it on its own goroutine.
func (p *Pipeline) Attach(ctx context.Context, instanceID string, stream *docker.LogStream, opts AttachOpts) {
	defer stream.Close()

	reader := io.Reader(stream.Reader)
	if !stream.TTY {
		pr, pw := io.Pipe()
		go func() {
			err := docker.Demux(pw, stream.Reader)
			pw.CloseWithError(err)
		}()
		reader = pr
	}

	// Closing the stream on cancellation unblocks the scanner.
	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		ts, msg := Sanitize(scanner.Text())
		if msg == "" {
			continue
		}
		level := opts.ForceLevel
		if level == "" {
			level = Classify(msg)
		}
		rec := Record{Timestamp: ts, Level: level, Message: msg}
		p.Emit(instanceID, rec)
		if opts.OnLine != nil {
			opts.OnLine(rec)
		}
	}
}

// Tail returns the last n records from the newest daily file of an
// instance. Missing files yield an empty slice.
func (p *Pipeline) Tail(instanceID string, n int) ([]Record, error) {
	if n <= 0 {
		n = 100
	}
	dir := filepath.Join(p.dir, instanceID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("read logs dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log") {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return []Record{}, nil
	}
	sort.Strings(files)

	data, err := os.ReadFile(filepath.Join(dir, files[len(files)-1]))
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		m := fileLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, m[1])
		if err != nil {
			continue
		}
		records = append(records, Record{
			Timestamp: ts,
			Level:     strings.ToLower(m[2]),
			Message:   m[3],
		})
	}
	return records, nil
}

// DeleteOlderThan removes log files whose mtime is older than maxAge and
// returns how many were deleted. Best effort.
func (p *Pipeline) DeleteOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	instances, err := os.ReadDir(p.dir)
	if err != nil {
		return 0
	}
	for _, inst := range instances {
		if !inst.IsDir() {
			continue
		}
		dir := filepath.Join(p.dir, inst.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".log") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, f.Name())); err == nil {
					deleted++
				}
			}
		}
	}
	if deleted > 0 {
		p.logger.Info("aged log files deleted", "count", deleted)
	}
	return deleted
}
