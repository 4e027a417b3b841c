// Package window resolves the user supplied start and stop boundary into
// concrete binlog coordinates.
package window

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"binlog2sql/internal/models"
)

// Default time bounds, interpreted in the local timezone
const (
	DefaultStartTime = "1980-01-01 00:00:00"
	DefaultStopTime  = "2999-12-31 00:00:00"
)

var timeLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}

// Inventory lists the binlog files retained by the server, oldest first
type Inventory interface {
	MasterLogs(ctx context.Context) ([]models.LogFile, error)
}

// Options are the raw boundary settings. Zero values mean "not set".
type Options struct {
	StartFile     string
	StopFile      string
	StartPosition uint32
	StopPosition  uint32
	StartTime     string
	StopTime      string
	StopNever     bool
	Location      *time.Location
}

// Resolve turns the options into a Window using the server inventory
func Resolve(ctx context.Context, inv Inventory, opts Options) (models.Window, error) {
	var w models.Window

	start, err := ParseTime(orDefault(opts.StartTime, DefaultStartTime), opts.Location)
	if err != nil {
		return w, err
	}
	stop, err := ParseTime(orDefault(opts.StopTime, DefaultStopTime), opts.Location)
	if err != nil {
		return w, err
	}

	startPos := opts.StartPosition
	if startPos == 0 {
		startPos = models.MinLogPosition
	}
	if startPos < models.MinLogPosition {
		return w, models.NewConfigurationError("start position %d is below %d", startPos, models.MinLogPosition)
	}

	logs, err := inv.MasterLogs(ctx)
	if err != nil {
		return w, fmt.Errorf("failed to list master logs: %w", err)
	}
	if len(logs) == 0 {
		return w, models.NewConfigurationError("no binlog on server, is log_bin enabled")
	}

	var last models.LogFile
	startFile := opts.StartFile
	if startFile == "" {
		last = logs[len(logs)-1]
		startFile = last.Name
	} else {
		stopFile := orDefault(opts.StopFile, startFile)
		if CompareLogNames(stopFile, startFile) < 0 {
			return w, models.NewConfigurationError("stop file %s is before start file %s", stopFile, startFile)
		}
		found := false
		for _, l := range logs {
			if CompareLogNames(startFile, l.Name) <= 0 && CompareLogNames(l.Name, stopFile) <= 0 {
				last, found = l, true
			}
		}
		if !found {
			return w, models.NewConfigurationError("start_file %s not in mysql server", startFile)
		}
	}

	stopPos := last.Position
	if opts.StopPosition != 0 {
		stopPos = opts.StopPosition
	}

	return models.Window{
		StartFile:     startFile,
		StartPosition: startPos,
		StopFile:      last.Name,
		StopPosition:  stopPos,
		StartTime:     start,
		StopTime:      stop,
		StopNever:     opts.StopNever,
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ParseTime parses "YYYY-MM-DD[ HH:MM:SS]" into unix seconds. loc defaults
// to time.Local.
func ParseTime(text string, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.Local
	}
	text = strings.TrimSpace(text)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, models.NewConfigurationError("incorrect datetime argument %q", text)
}

// CompareLogNames orders binlog file names. Names sharing a base compare
// on their numeric sequence suffix, anything else compares as text.
func CompareLogNames(a, b string) int {
	ab, as, aok := split(a)
	bb, bs, bok := split(b)
	if aok && bok && ab == bb {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func split(name string) (string, uint64, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(name[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return name[:i], seq, true
}
