// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/keepsake/pkg/logger"
	"github.com/papercomputeco/keepsake/pkg/vector"
)

// SQLiteVecDriver implements vector.Driver using SQLite with sqlite-vec.
// Vectors are stored as float32 blobs keyed by (fact id, model) and scored
// natively with vec_distance_cosine.
type SQLiteVecDriver struct {
	db         *sql.DB
	dimensions uint
	logger     *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions, when non-zero, rejects upserts of any other length.
	Dimensions uint
}

// NewSQLiteVecDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewSQLiteVecDriver(c Config, log *slog.Logger) (*SQLiteVecDriver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_fact_vectors (
			fact_id INTEGER NOT NULL,
			model TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (fact_id, model)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating fact vectors table: %w", err)
	}

	log.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &SQLiteVecDriver{
		db:         db,
		dimensions: c.Dimensions,
		logger:     log,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Get returns the stored embedding for a fact under model, or nil.
func (d *SQLiteVecDriver) Get(ctx context.Context, factID int64, model string) ([]float32, error) {
	var blob []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT embedding FROM memory_fact_vectors WHERE fact_id = ? AND model = ?`,
		factID, model,
	).Scan(&blob)

	switch err {
	case nil:
		return deserializeFloat32(blob)
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, fmt.Errorf("getting vector for fact %d: %w", factID, err)
	}
}

// Upsert stores a fact vector, replacing any existing one for (fact id, model).
func (d *SQLiteVecDriver) Upsert(ctx context.Context, rec vector.Record) error {
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("%w: empty embedding for fact %d", vector.ErrEmbedding, rec.FactID)
	}
	if d.dimensions != 0 && uint(len(rec.Embedding)) != d.dimensions {
		return fmt.Errorf("%w: got %d, want %d", vector.ErrDimensionMismatch, len(rec.Embedding), d.dimensions)
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO memory_fact_vectors (fact_id, model, dimensions, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fact_id, model) DO UPDATE SET
			dimensions = excluded.dimensions,
			embedding = excluded.embedding
	`, rec.FactID, rec.Model, len(rec.Embedding), serializeFloat32(rec.Embedding))
	if err != nil {
		return fmt.Errorf("upserting vector for fact %d: %w", rec.FactID, err)
	}

	d.logger.Debug("upserted fact vector",
		"fact_id", rec.FactID,
		"model", rec.Model,
	)
	return nil
}

// Scores computes cosine similarity in SQLite for the requested facts.
// Vectors whose dimensions differ from the query are skipped.
func (d *SQLiteVecDriver) Scores(ctx context.Context, q vector.ScoreQuery) ([]vector.Score, error) {
	if len(q.FactIDs) == 0 || len(q.QueryEmbedding) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(q.FactIDs))
	args := make([]any, 0, len(q.FactIDs)+3)
	args = append(args, serializeFloat32(q.QueryEmbedding), q.Model, len(q.QueryEmbedding))
	for i, id := range q.FactIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT fact_id, 1.0 - vec_distance_cosine(embedding, ?)
		FROM memory_fact_vectors
		WHERE model = ?
			AND dimensions = ?
			AND fact_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scoring vectors: %w", err)
	}
	defer rows.Close()

	var scores []vector.Score
	for rows.Next() {
		var (
			id    int64
			score sql.NullFloat64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		scores = append(scores, vector.Score{
			FactID: id,
			Score:  vector.ClampScore(score.Float64),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scores: %w", err)
	}

	d.logger.Debug("scored fact vectors",
		"requested", len(q.FactIDs),
		"scored", len(scores),
	)

	return scores, nil
}

// Close releases resources held by the driver.
func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}

var _ vector.Driver = (*SQLiteVecDriver)(nil)
