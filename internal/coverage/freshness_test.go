package coverage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPriorityOrder(t *testing.T) {
	th := Thresholds{StaleDays: 7, MinRecords: 365}
	today := d(2025, 6, 15)

	t.Run("no history wins over everything", func(t *testing.T) {
		assert.Equal(t, NoHistory, Classify(today, nil, 0, th))
	})

	t.Run("stale beats incomplete", func(t *testing.T) {
		last := d(2025, 6, 1) // 14 days old, count also below minimum
		assert.Equal(t, Stale, Classify(today, &last, 10, th))
	})

	t.Run("incomplete when recent but short history", func(t *testing.T) {
		last := d(2025, 6, 14)
		assert.Equal(t, Incomplete, Classify(today, &last, 100, th))
	})

	t.Run("fresh otherwise", func(t *testing.T) {
		last := d(2025, 6, 14)
		assert.Equal(t, Fresh, Classify(today, &last, 400, th))
	})
}

func TestClassifyStaleBoundary(t *testing.T) {
	th := Thresholds{StaleDays: 7, MinRecords: 1}
	today := d(2025, 6, 15)

	exactly := d(2025, 6, 8) // 7 days: not yet stale
	assert.Equal(t, Fresh, Classify(today, &exactly, 5, th))

	over := d(2025, 6, 7) // 8 days: stale
	assert.Equal(t, Stale, Classify(today, &over, 5, th))
}

func TestNeedsFetch(t *testing.T) {
	assert.True(t, NeedsFetch(NoHistory))
	assert.True(t, NeedsFetch(Stale))
	assert.True(t, NeedsFetch(Incomplete))
	assert.False(t, NeedsFetch(Fresh))
}

func TestClassifyIgnoresTimeOfDay(t *testing.T) {
	th := Thresholds{StaleDays: 7, MinRecords: 1}
	today := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	last := time.Date(2025, 6, 8, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, Fresh, Classify(today, &last, 5, th))
}
