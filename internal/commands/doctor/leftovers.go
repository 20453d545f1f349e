package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// leftoverPattern matches temp files left behind by an interrupted atomic write.
const leftoverPattern = "**/*.tmp"

// LeftoverCheck finds temp files in the data directory that a crashed write
// never renamed into place.
type LeftoverCheck struct {
	dataDir string
	fix     bool
}

// NewLeftoverCheck creates a new leftover file check.
// If fix is true, leftover files will be deleted.
func NewLeftoverCheck(dataDir string, fix bool) *LeftoverCheck {
	return &LeftoverCheck{
		dataDir: dataDir,
		fix:     fix,
	}
}

func (c *LeftoverCheck) Name() string {
	return "Leftover Files"
}

func (c *LeftoverCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if _, err := os.Stat(c.dataDir); os.IsNotExist(err) {
		result.pass("Data directory", "no data directory yet")
		return result
	}

	matches, err := doublestar.Glob(os.DirFS(c.dataDir), leftoverPattern, doublestar.WithFilesOnly())
	if err != nil {
		result.fail("Scan data directory", err.Error())
		return result
	}

	if len(matches) == 0 {
		result.pass("No leftovers", "no interrupted writes found")
		return result
	}

	for _, rel := range matches {
		path := filepath.Join(c.dataDir, filepath.FromSlash(rel))

		if !c.fix {
			result.Items = append(result.Items, Finding{
				Label:   rel,
				Status:  StatusWarn,
				Detail:  "temp file from an interrupted write",
				Fixable: true,
			})
			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result.fail(rel, fmt.Sprintf("failed to delete: %v", err))
			continue
		}
		result.pass(rel, "deleted leftover file")
	}

	return result
}
