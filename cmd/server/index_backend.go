package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"neonlane.ai/internal/persistence/indexdb"
	"neonlane.ai/internal/persistence/snapshot"
	"neonlane.ai/internal/sim/runner"
	"neonlane.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	runner.TickLogger
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordRun(sum runner.Summary)
	Stats() indexdb.QueueStats
}

func openRuntimeIndex(runDir, runID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("NL_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(runDir, "index", "run.sqlite")
		return indexdb.OpenSQLite(dbPath, runID)
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("NL_INDEX_D1_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("NL_INDEX_D1_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("NL_INDEX_BACKEND=d1 but NL_INDEX_D1_INGEST_URL is empty")
		}
		flushMS := envInt("NL_INDEX_D1_FLUSH_MS", 500)
		batchSize := envInt("NL_INDEX_D1_BATCH_SIZE", 128)
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         token,
			RunID:         runID,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported NL_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a runner.TickLogger
	b runner.TickLogger
}

// WriteTick writes to every logger and joins their errors.
func (m multiTickLogger) WriteTick(entry runner.TickLogEntry) error {
	var errA, errB error
	if m.a != nil {
		errA = m.a.WriteTick(entry)
	}
	if m.b != nil {
		if err := m.b.WriteTick(entry); err != nil {
			errB = fmt.Errorf("index: %w", err)
		}
	}
	return errors.Join(errA, errB)
}
