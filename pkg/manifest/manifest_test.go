package manifest

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	return l
}

func TestLedgerStartFinish(t *testing.T) {
	l := openTestLedger(t)

	run, err := l.Start("crowdtangle/kw", "kw", "2022-10-05", "data/2022-10-05__kw.json.gz")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)

	require.NoError(t, l.Finish(run, 1234, nil))

	runs, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusOK, runs[0].Status)
	assert.Equal(t, 1234, runs[0].Records)
	assert.Equal(t, "2022-10-05", runs[0].Day)
	assert.Equal(t, "data/2022-10-05__kw.json.gz", runs[0].OutputFile)
	require.NotNil(t, runs[0].EndedAt)
}

func TestLedgerRecordsFailure(t *testing.T) {
	l := openTestLedger(t)

	run, err := l.Start("pushshift/submission/kw", "kw", "", "")
	require.NoError(t, err)
	require.NoError(t, l.Finish(run, 0, errors.New("shard down")))

	failures, err := l.Failures(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "shard down", failures[0].Error)
}

func TestLedgerLastByCollector(t *testing.T) {
	l := openTestLedger(t)

	first, err := l.Start("4chan/pol", "pol", "", "")
	require.NoError(t, err)
	require.NoError(t, l.Finish(first, 1, nil))

	second, err := l.Start("4chan/pol", "pol", "", "")
	require.NoError(t, err)
	require.NoError(t, l.Finish(second, 2, nil))

	last, err := l.LastByCollector()
	require.NoError(t, err)
	require.Contains(t, last, "4chan/pol")
	assert.Equal(t, second.ID, last["4chan/pol"].ID)
}
