package commands

import (
	"os"
	"path/filepath"

	"github.com/bootcdev/diskctl/pkg/errors"
)

// ensureDirectories creates the directories backing the history file and
// the lifecycle state database.
func ensureDirectories(historyPath, fsmDBPath string) error {
	if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
		return errors.Wrap(err, "failed to create history directory")
	}
	// The lifecycle state database path is a directory owned by the fsm
	// library.
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0o755); err != nil {
			return errors.Wrap(err, "failed to create state directory")
		}
	}
	return nil
}
