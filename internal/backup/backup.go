// Package backup writes timestamped snapshots of the event blob on a cron
// schedule and prunes old ones.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/persist"
)

const (
	filePrefix = "events-"
	fileSuffix = ".json"
	stampFmt   = "20060102-150405"
)

// Source yields the events to snapshot. *store.Store satisfies it.
type Source interface {
	Events() []model.BaseEvent
}

// Snapshotter writes snapshots of a Source into Dir, keeping the newest Keep.
type Snapshotter struct {
	Source Source
	Dir    string
	Keep   int
	now    func() time.Time
}

func NewSnapshotter(src Source, dir string, keep int) *Snapshotter {
	if keep <= 0 {
		keep = 1
	}
	return &Snapshotter{Source: src, Dir: dir, Keep: keep, now: time.Now}
}

// Snapshot writes one snapshot and prunes beyond Keep. It returns the path
// written.
func (s *Snapshotter) Snapshot() (string, error) {
	if s.Dir == "" {
		return "", errors.New("backup dir is empty")
	}
	data, err := persist.Encode(s.Source.Events())
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, filePrefix+s.now().Format(stampFmt)+fileSuffix)
	if err := persist.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := s.prune(); err != nil {
		return path, fmt.Errorf("prune snapshots: %w", err)
	}
	return path, nil
}

// List returns snapshot paths, oldest first.
func (s *Snapshotter) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		out = append(out, filepath.Join(s.Dir, name))
	}
	// The timestamp format sorts lexically.
	sort.Strings(out)
	return out, nil
}

func (s *Snapshotter) prune() error {
	paths, err := s.List()
	if err != nil {
		return err
	}
	for len(paths) > s.Keep {
		if err := os.Remove(paths[0]); err != nil {
			return err
		}
		paths = paths[1:]
	}
	return nil
}

// Scheduler runs a Snapshotter on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
}

// Start schedules snap according to schedule (standard 5-field cron syntax).
func Start(schedule string, snap *Snapshotter) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		path, err := snap.Snapshot()
		if err != nil {
			appLog.Error("backup snapshot failed", err, "dir", snap.Dir)
			return
		}
		appLog.Info("backup snapshot written", "path", path)
	})
	if err != nil {
		return nil, fmt.Errorf("parse backup schedule %q: %w", schedule, err)
	}
	c.Start()
	appLog.Info("backup scheduler started", "cron", schedule, "dir", snap.Dir, "keep", snap.Keep)
	return &Scheduler{cron: c}, nil
}

// Stop stops scheduling and waits for a running snapshot or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
