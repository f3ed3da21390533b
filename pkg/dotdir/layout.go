package dotdir

import "path/filepath"

const (
	sqliteFile   = "keepsake.sqlite"
	vectorFile   = "vectors.sqlite"
	journalDir   = "journal"
	snapshotFile = "MEMORY.md"
)

// Layout names the files keepsake keeps inside a resolved .keepsake/ directory.
type Layout struct {
	Root string
}

// Layout resolves the target directory and returns its file layout.
func (m *Manager) Layout(overrideDir string) (Layout, error) {
	root, err := m.Target(overrideDir)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Root: root}, nil
}

// SQLitePath is the default fact database.
func (l Layout) SQLitePath() string {
	return filepath.Join(l.Root, sqliteFile)
}

// VectorPath is the default sqlite-vec index.
func (l Layout) VectorPath() string {
	return filepath.Join(l.Root, vectorFile)
}

// JournalDir is the default directory for daily markdown journals.
func (l Layout) JournalDir() string {
	return filepath.Join(l.Root, journalDir)
}

// SnapshotPath is the default MEMORY.md location.
func (l Layout) SnapshotPath() string {
	return filepath.Join(l.Root, snapshotFile)
}

// Or returns path when set, else fallback.
func Or(path, fallback string) string {
	if path != "" {
		return path
	}
	return fallback
}
