package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"sugarscape.ai/internal/persistence/indexdb"
)

// openRuntimeIndex opens the shared episode index under dataDir. Every episode of a run
// lands in the same database, keyed by episode id.
func openRuntimeIndex(dataDir, episodeID string, disableDB bool, logger *log.Logger) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SUGAR_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("index backend disabled (SUGAR_INDEX_BACKEND=%s)", backend)
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "episodes.sqlite")
		return indexdb.OpenSQLite(dbPath, episodeID)
	default:
		return nil, fmt.Errorf("unsupported SUGAR_INDEX_BACKEND: %s", backend)
	}
}
