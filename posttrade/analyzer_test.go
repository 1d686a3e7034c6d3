package posttrade

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-executor-go/position"
)

func TestJournalRecordAndStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)

	require.NoError(t, j.Record(position.ExecutionRecord{
		Side: "buy", Pair: "XETHZEUR", OrderType: "market",
		Price: 200, Volume: 2, Fee: 0.0026, OrderID: 101,
	}))
	require.NoError(t, j.Record(position.ExecutionRecord{
		Side: "sell", Pair: "XETHZEUR", OrderType: "limit",
		Price: 210, Volume: 2, Fee: 0.0016, OrderID: 102,
	}))
	require.NoError(t, j.Record(position.ExecutionRecord{
		Pair: "XETHZEUR", OrderType: "market", Price: 205, Synthetic: true,
	}))
	require.NoError(t, j.Close())

	s := j.Stats()
	assert.Equal(t, 3, s.Records)
	assert.Equal(t, 1, s.Synthetic)
	assert.Equal(t, 2.0, s.BoughtVol)
	assert.Equal(t, 2.0, s.SoldVol)
	assert.Equal(t, 200*2.0+210*2.0, s.Turnover)
}

func TestReplayMatchesLiveStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(position.ExecutionRecord{
		Side: "buy", Pair: "XETHZEUR", OrderType: "market",
		Price: 200, Volume: 1.5, Fee: 0.0026, OrderID: 101,
	}))
	live := j.Stats()
	require.NoError(t, j.Close())

	replayed, records, err := Replay(path)
	require.NoError(t, err)
	assert.Equal(t, live, replayed)
	require.Len(t, records, 1)
	assert.Equal(t, int32(101), records[0].OrderID)
}

func TestJournalAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.jsonl")

	j1, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, j1.Record(position.ExecutionRecord{Side: "buy", Pair: "XETHZEUR", OrderType: "market", Price: 200, Volume: 1}))
	require.NoError(t, j1.Close())

	j2, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, j2.Record(position.ExecutionRecord{Side: "sell", Pair: "XETHZEUR", OrderType: "market", Price: 201, Volume: 1}))
	require.NoError(t, j2.Close())

	stats, records, err := Replay(path)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Len(t, records, 2)
}
