// Package journal writes the append-only daily message journal and atomic
// snapshot files.
package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// DayLayout names journal files: one file per UTC day.
	DayLayout = "2006-01-02"

	// TimestampLayout is the ISO-8601 timestamp written at the start of each line.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

	fileExt = ".md"
	none    = "none"
)

// Entry is one journaled chat message.
type Entry struct {
	Timestamp  time.Time
	AuthorName string
	AuthorID   string
	GuildID    string
	ChannelID  string
	MessageID  string
	Content    string
}

// Line renders the entry in the journal line format:
//
//	- <ISO timestamp> | <author> (<authorId>) | [guild:<g> channel:<c> message:<m>] <content>
func (e Entry) Line() string {
	author := field(e.AuthorName)
	if author == "" {
		author = "unknown"
	}

	return fmt.Sprintf("- %s | %s (%s) | [guild:%s channel:%s message:%s] %s",
		e.Timestamp.UTC().Format(TimestampLayout),
		author,
		orNone(e.AuthorID),
		orNone(e.GuildID),
		orNone(e.ChannelID),
		orNone(e.MessageID),
		field(e.Content),
	)
}

// fieldReplacer keeps user-supplied text from breaking the line layout.
var fieldReplacer = strings.NewReplacer("|", "/", "\r\n", " ", "\n", " ", "\r", " ")

func field(s string) string {
	return strings.TrimSpace(fieldReplacer.Replace(s))
}

func orNone(s string) string {
	s = field(s)
	if s == "" {
		return none
	}
	return s
}

// Journal appends entries to per-day files under a directory.
type Journal struct {
	dir string

	// mu serializes appends so lines from concurrent writers never interleave.
	mu sync.Mutex
}

// New returns a journal rooted at dir. The directory is created on first append.
func New(dir string) *Journal {
	return &Journal{dir: dir}
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// FileFor returns the journal file path for the UTC day of t.
func (j *Journal) FileFor(t time.Time) string {
	return filepath.Join(j.dir, t.UTC().Format(DayLayout)+fileExt)
}

// Append writes one line for the entry to that day's file.
func (j *Journal) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}

	f, err := os.OpenFile(j.FileFor(e.Timestamp), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(e.Line() + "\n"); err != nil {
		return fmt.Errorf("appending journal line: %w", err)
	}
	return nil
}

// Tail returns up to n of the most recent journal lines in chronological order.
func (j *Journal) Tail(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(j.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading journal directory: %w", err)
	}

	var days []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		if _, err := time.Parse(DayLayout, strings.TrimSuffix(name, fileExt)); err != nil {
			continue
		}
		days = append(days, name)
	}
	slices.Sort(days)

	var out []string
	for i := len(days) - 1; i >= 0 && len(out) < n; i-- {
		lines, err := readLines(filepath.Join(j.dir, days[i]))
		if err != nil {
			return nil, err
		}
		need := n - len(out)
		if len(lines) > need {
			lines = lines[len(lines)-need:]
		}
		out = append(lines, out...)
	}

	return out, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal file: %w", err)
	}
	return lines, nil
}

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
