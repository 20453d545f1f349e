package jsonfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hay-kot/perch/internal/core/messaging"
	"github.com/hay-kot/perch/pkg/randid"
)

const (
	defaultMaxActivities = 1000
	activityFilename     = "activity.jsonl"
)

// ActivityStore implements messaging.ActivityStore using a JSONL file.
// Records are appended; the file is compacted back to the retention limit
// once it grows to twice that size.
type ActivityStore struct {
	dir           string
	maxActivities int
	mu            sync.Mutex
}

// NewActivityStore creates a new activity store at the given directory.
func NewActivityStore(dir string) *ActivityStore {
	return &ActivityStore{
		dir:           dir,
		maxActivities: defaultMaxActivities,
	}
}

// WithMaxActivities sets the maximum number of activities to retain.
func (s *ActivityStore) WithMaxActivities(n int) *ActivityStore {
	if n > 0 {
		s.maxActivities = n
	}
	return s
}

// Path returns the journal file location.
func (s *ActivityStore) Path() string {
	return filepath.Join(s.dir, activityFilename)
}

// Record appends an activity event.
func (s *ActivityStore) Record(activity messaging.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activity.ID == "" {
		activity.ID = randid.Generate(16)
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}

	line, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	line = append(line, '\n')

	return withFileLock(s.Path(), syscall.LOCK_EX, func() error {
		f, err := os.OpenFile(s.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open activity file: %w", err)
		}

		if _, err := f.Write(line); err != nil {
			f.Close() //nolint:errcheck
			return fmt.Errorf("write activity: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close activity file: %w", err)
		}

		return s.compactUnsafe()
	})
}

// List returns recent activity events, newest first.
func (s *ActivityStore) List(limit int) ([]messaging.Activity, error) {
	return s.ListSince(time.Time{}, limit)
}

// ListSince returns activity events after the given time, newest first.
// A zero time returns every retained event.
func (s *ActivityStore) ListSince(since time.Time, limit int) ([]messaging.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []messaging.Activity
	err := withFileLock(s.Path(), syscall.LOCK_SH, func() error {
		activities, err := s.readActivitiesUnsafe()
		if err != nil {
			return err
		}

		// The file may hold up to twice the limit between compactions.
		oldest := max(0, len(activities)-s.maxActivities)
		for i := len(activities) - 1; i >= oldest; i-- {
			if !since.IsZero() && !activities[i].Timestamp.After(since) {
				continue
			}
			result = append(result, activities[i])
			if limit > 0 && len(result) >= limit {
				break
			}
		}
		return nil
	})
	return result, err
}

// compactUnsafe trims the journal to the newest maxActivities entries once
// it holds at least twice that many. Caller must hold the exclusive lock.
func (s *ActivityStore) compactUnsafe() error {
	info, err := os.Stat(s.Path())
	if err != nil {
		return fmt.Errorf("stat activity file: %w", err)
	}
	// Entries are at least a few dozen bytes each, so small files can be
	// skipped without counting lines.
	if info.Size() < int64(s.maxActivities)*2*32 {
		return nil
	}

	activities, err := s.readActivitiesUnsafe()
	if err != nil {
		return err
	}
	if len(activities) < s.maxActivities*2 {
		return nil
	}

	data, err := encodeActivities(activities[len(activities)-s.maxActivities:])
	if err != nil {
		return err
	}
	return writeAtomic(s.Path(), data)
}

// readActivitiesUnsafe reads the whole journal. Caller must hold the lock.
func (s *ActivityStore) readActivitiesUnsafe() ([]messaging.Activity, error) {
	f, err := os.Open(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open activity file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	activities, err := decodeActivities(f)
	if err != nil {
		return nil, fmt.Errorf("read activity file: %w", err)
	}
	return activities, nil
}

// decodeActivities parses JSONL records in file order. A line that does not
// parse, such as one cut short by a crash, is skipped.
func decodeActivities(r io.Reader) ([]messaging.Activity, error) {
	var out []messaging.Activity

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var a messaging.Activity
		if json.Unmarshal(scanner.Bytes(), &a) == nil {
			out = append(out, a)
		}
	}
	return out, scanner.Err()
}

func encodeActivities(activities []messaging.Activity) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, a := range activities {
		if err := enc.Encode(a); err != nil {
			return nil, fmt.Errorf("encode activity: %w", err)
		}
	}
	return buf.Bytes(), nil
}
