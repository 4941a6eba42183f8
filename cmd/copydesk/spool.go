package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/hazyhaar/copydesk/mailroom"
)

// spoolFetcher reads parsed messages from a spool directory, one JSON file
// per message, written there by whatever mail gateway fronts the service.
// A consumed file is renamed to .done so a crash mid-cycle never loses or
// double-ingests mail; malformed files are set aside as .err.
type spoolFetcher struct {
	dir    string
	logger *slog.Logger
}

func newSpoolFetcher(dir string, logger *slog.Logger) (*spoolFetcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool dir: %w", err)
	}
	return &spoolFetcher{dir: dir, logger: logger.With("component", "spool")}, nil
}

func (f *spoolFetcher) FetchUnread(ctx context.Context, limit int) ([]mailroom.Message, error) {
	paths, err := filepath.Glob(filepath.Join(f.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("spool glob: %w", err)
	}
	sort.Strings(paths)

	var msgs []mailroom.Message
	for _, path := range paths {
		if len(msgs) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return msgs, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			f.logger.Error("spool read", "path", path, "error", err)
			continue
		}
		var msg mailroom.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Error("spool parse, setting aside", "path", path, "error", err)
			f.rename(path, path+".err")
			continue
		}
		f.rename(path, path+".done")
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (f *spoolFetcher) rename(from, to string) {
	if err := os.Rename(from, to); err != nil {
		f.logger.Error("spool rename", "path", from, "error", err)
	}
}
