package repo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tett23/ckusro/pkg/object"
)

const namespaceLogFile = "namespaces"

// ReflogEntry is one recorded change to a registered fragment. A zero
// NewID means the fragment was unregistered.
type ReflogEntry struct {
	Fragment  string
	OldID     object.Hash
	NewID     object.Hash
	Timestamp int64
}

func (r *Repo) namespaceLogPath() string {
	return filepath.Join(r.Dir, "logs", namespaceLogFile)
}

// appendNamespaceLog records "old new unix "fragment"". The fragment is
// quoted since it may contain spaces.
func (r *Repo) appendNamespaceLog(fragment string, oldID, newID object.Hash) error {
	logPath := r.namespaceLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}

	line := fmt.Sprintf("%s %s %d %s\n", oldID, newID, time.Now().Unix(), strconv.Quote(fragment))

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// ReadReflog returns namespace log entries, newest first. A positive limit
// caps the number returned. Malformed lines are skipped.
func (r *Repo) ReadReflog(limit int) ([]ReflogEntry, error) {
	f, err := os.Open(r.namespaceLogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 4)
		if len(parts) < 4 {
			continue
		}
		oldID, err := object.ParseHash(parts[0])
		if err != nil {
			continue
		}
		newID, err := object.ParseHash(parts[1])
		if err != nil {
			continue
		}
		ts, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		fragment, err := strconv.Unquote(parts[3])
		if err != nil {
			continue
		}
		entries = append(entries, ReflogEntry{
			Fragment:  fragment,
			OldID:     oldID,
			NewID:     newID,
			Timestamp: ts,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	// Return newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
