package eventstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
)

// FileSource reads events from a JSON array or a JSON-lines file (.jsonl, .ndjson).
type FileSource struct {
	path string
}

var _ contract.EventSource = &FileSource{} // Compile-time check

// NewFileSource returns a source backed by the file at path.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("events file %q is a directory", path)
	}
	return &FileSource{path: path}, nil
}

// FetchEvents reads the whole file and keeps events inside r. Records whose timestamp
// cannot be parsed are passed through so the normalizer can reject them.
func (f *FileSource) FetchEvents(ctx context.Context, r schema.DateRange) ([]schema.RawEvent, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file %q: %w", f.path, err)
	}

	var events []schema.RawEvent
	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".jsonl", ".ndjson":
		events, err = decodeLines(ctx, data)
	default:
		err = json.Unmarshal(data, &events)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode events file %q: %w", f.path, err)
	}
	if r.IsZero() {
		return events, nil
	}

	kept := events[:0]
	for _, e := range events {
		ts, ok := parseTimestamp(e.Timestamp)
		if !ok || r.Contains(ts) {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

func decodeLines(ctx context.Context, data []byte) ([]schema.RawEvent, error) {
	var events []schema.RawEvent
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line%10000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e schema.RawEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
