package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"murmur/log"
	"murmur/session"
)

// minFreeBytes is the preflight floor: refuse to write when the notes
// filesystem has less than this free.
const minFreeBytes = 10 * 1024 * 1024

const timestampFormat = "2006-01-02 15:04:05"

// diskFree is swapped in tests to simulate a full disk.
var diskFree = freeSpace

// Store writes each transcript as a markdown note with a small frontmatter
// block, and manages an archive directory next to it.
type Store struct {
	notesDir   string
	archiveDir string
}

func NewStore(notesDir, archiveDir string) (*Store, error) {
	for _, d := range []string{notesDir, archiveDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return &Store{notesDir: notesDir, archiveDir: archiveDir}, nil
}

func (s *Store) Name() string { return "storage" }

func (s *Store) NotesDir() string { return s.notesDir }

// Deliver writes the note atomically: temp file in the target directory,
// then rename. A crash mid-write never leaves a partial note.
func (s *Store) Deliver(text string, sess *session.Session) error {
	free, err := diskFree(s.notesDir)
	if err != nil {
		// Best effort: a broken statfs must not block note writes, but it
		// also must not silently disable the preflight.
		log.Warnf("disk space check failed for %s: %v", s.notesDir, err)
	} else if free < minFreeBytes {
		return &DeliveryError{
			Reason: ReasonInsufficientSpace,
			Err:    fmt.Errorf("%d bytes free, need %d", free, minFreeBytes),
		}
	}

	started := sess.StartedAt()
	if started.IsZero() {
		started = time.Now()
	}
	name := fmt.Sprintf("%s_%s.md", started.Format("2006-01-02_150405"), shortID(sess))
	path := filepath.Join(s.notesDir, name)

	content := fmt.Sprintf("---\ntimestamp: %s\nduration: %.1fs\n---\n\n%s\n",
		started.Format(timestampFormat), sess.AudioSeconds(), text)

	tmp, err := os.CreateTemp(s.notesDir, ".murmur-*")
	if err != nil {
		return &DeliveryError{Reason: ReasonWriteFailed, Err: err}
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &DeliveryError{Reason: ReasonWriteFailed, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &DeliveryError{Reason: ReasonWriteFailed, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return &DeliveryError{Reason: ReasonWriteFailed, Err: err}
	}
	return nil
}

func shortID(sess *session.Session) string {
	id := sess.ID.String()
	return strings.ReplaceAll(id, "-", "")[:8]
}

// Notes lists note paths, newest first.
func (s *Store) Notes() ([]string, error) {
	entries, err := os.ReadDir(s.notesDir)
	if err != nil {
		return nil, err
	}
	var notes []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		notes = append(notes, filepath.Join(s.notesDir, e.Name()))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(notes)))
	return notes, nil
}

// Archive moves one note into the archive directory. A name collision gets
// a numeric suffix instead of clobbering the archived copy.
func (s *Store) Archive(path string) error {
	base := filepath.Base(path)
	dest := filepath.Join(s.archiveDir, base)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		dest = filepath.Join(s.archiveDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	return os.Rename(path, dest)
}

// ArchiveAll moves every note into the archive directory.
func (s *Store) ArchiveAll() (int, error) {
	notes, err := s.Notes()
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, n := range notes {
		if err := s.Archive(n); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
