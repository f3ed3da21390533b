package testutils

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/papercomputeco/keepsake/pkg/vector"
	"github.com/papercomputeco/keepsake/pkg/vector/inmemory"
)

// MockVectorDriver is a test vector driver backed by the in-memory driver
// that counts calls and can be made to fail.
type MockVectorDriver struct {
	*inmemory.Driver

	FailScores bool
	FailUpsert bool

	upserts    atomic.Int64
	scoreCalls atomic.Int64
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{Driver: inmemory.NewDriver()}
}

func (m *MockVectorDriver) Upsert(ctx context.Context, rec vector.Record) error {
	if m.FailUpsert {
		return errors.New("mock upsert failure")
	}
	m.upserts.Add(1)
	return m.Driver.Upsert(ctx, rec)
}

func (m *MockVectorDriver) Scores(ctx context.Context, q vector.ScoreQuery) ([]vector.Score, error) {
	m.scoreCalls.Add(1)
	if m.FailScores {
		return nil, errors.New("mock scores failure")
	}
	return m.Driver.Scores(ctx, q)
}

// Upserts returns the number of successful Upsert calls.
func (m *MockVectorDriver) Upserts() int {
	return int(m.upserts.Load())
}

// ScoreCalls returns the number of Scores calls.
func (m *MockVectorDriver) ScoreCalls() int {
	return int(m.scoreCalls.Load())
}

var _ vector.Driver = (*MockVectorDriver)(nil)
