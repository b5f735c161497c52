package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booknest/booknest/internal/model"
)

func sampleDrift() model.Drift {
	return model.Drift{
		ID:            "01HVZ8Q6XKJ3M4N5P6Q7R8S9TV",
		Kind:          model.DriftOrphanDecrement,
		BookID:        "01HVZ8Q6XKJ3M4N5P6Q7R8S9TW",
		BorrowerEmail: "alice@example.com",
		LoanID:        "01HVZ8Q6XKJ3M4N5P6Q7R8S9TX",
		Detail:        "insert failed: connection reset",
		DetectedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDriftPayload_Decode(t *testing.T) {
	raw, err := encodeDrift(sampleDrift())
	require.NoError(t, err)

	got, err := decodeDrift(raw)

	require.NoError(t, err)
	assert.Equal(t, sampleDrift(), got)
}

func TestDriftPayload_TruncatesDetail(t *testing.T) {
	d := sampleDrift()
	d.Detail = strings.Repeat("x", 5000)

	raw, err := encodeDrift(d)
	require.NoError(t, err)
	got, err := decodeDrift(raw)
	require.NoError(t, err)

	assert.Len(t, got.Detail, maxDetailLength)
}

func TestDecodeDrift_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{"},
		{"missing id", `{"k":"orphan_increment","b":"book"}`},
		{"unknown kind", `{"id":"x","k":"teleport","b":"book"}`},
		{"missing book", `{"id":"x","k":"orphan_increment"}`},
		{"orphan decrement without loan", `{"id":"x","k":"orphan_decrement","b":"book","e":"a@b.c"}`},
		{"stale loan without borrower", `{"id":"x","k":"stale_loan","b":"book","l":"loan"}`},
		{"stale loan without loan", `{"id":"x","k":"stale_loan","b":"book","e":"a@b.c"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeDrift(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestNextRetryDelay(t *testing.T) {
	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{-1, 200 * time.Millisecond, 300 * time.Millisecond},
		{0, 200 * time.Millisecond, 300 * time.Millisecond},
		{1, 800 * time.Millisecond, 1200 * time.Millisecond},
		{2, 4 * time.Second, 6 * time.Second},
		{3, 12 * time.Second, 18 * time.Second},
		{10, 12 * time.Second, 18 * time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 10; i++ {
			d := NextRetryDelay(tt.attempt)
			if d < tt.min || d > tt.max {
				t.Errorf("NextRetryDelay(%d) = %v, want between %v and %v", tt.attempt, d, tt.min, tt.max)
			}
		}
	}
}

func TestNewConsumerID_Unique(t *testing.T) {
	assert.NotEqual(t, NewConsumerID(), NewConsumerID())
}
