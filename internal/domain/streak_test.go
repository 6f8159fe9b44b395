package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestComputeRunEmpty(t *testing.T) {
	run := ComputeRun(nil)
	require.Equal(t, 0, run.Length)
	require.True(t, run.LastActive.IsZero())
}

func TestComputeRunGapBreaksImmediately(t *testing.T) {
	dates := []time.Time{day("2024-01-01"), day("2024-01-02"), day("2024-01-03"), day("2024-01-05")}

	run := ComputeRun(dates)
	require.Equal(t, 1, run.Length)
	require.Equal(t, day("2024-01-05"), run.LastActive)
}

func TestComputeRunContiguous(t *testing.T) {
	dates := []time.Time{day("2024-01-01"), day("2024-01-02"), day("2024-01-03")}

	run := ComputeRun(dates)
	require.Equal(t, 3, run.Length)
	require.Equal(t, day("2024-01-03"), run.LastActive)
}

func TestComputeRunIgnoresInputOrder(t *testing.T) {
	dates := []time.Time{day("2024-03-10"), day("2024-03-12"), day("2024-03-11")}

	run := ComputeRun(dates)
	require.Equal(t, 3, run.Length)
	require.Equal(t, day("2024-03-12"), run.LastActive)
}

func TestComputeRunDeduplicatesDates(t *testing.T) {
	// AM and PM sessions on the same day count once.
	dates := []time.Time{day("2024-02-01"), day("2024-02-01"), day("2024-02-02")}

	run := ComputeRun(dates)
	require.Equal(t, 2, run.Length)
	require.Equal(t, day("2024-02-02"), run.LastActive)
}

func TestComputeRunSingleDate(t *testing.T) {
	run := ComputeRun([]time.Time{day("2024-06-15")})
	require.Equal(t, 1, run.Length)
	require.Equal(t, day("2024-06-15"), run.LastActive)
}

func TestComputeRunEarlierHistoryNotScanned(t *testing.T) {
	// A longer run earlier in the history does not extend the anchored run.
	dates := []time.Time{
		day("2024-01-01"), day("2024-01-02"), day("2024-01-03"), day("2024-01-04"),
		day("2024-01-10"), day("2024-01-11"),
	}

	run := ComputeRun(dates)
	require.Equal(t, 2, run.Length)
	require.Equal(t, day("2024-01-11"), run.LastActive)
}

func TestComputeRunNormalizesTimestamps(t *testing.T) {
	dates := []time.Time{
		time.Date(2024, 5, 1, 23, 45, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 0, 15, 0, 0, time.UTC),
	}

	run := ComputeRun(dates)
	require.Equal(t, 2, run.Length)
	require.Equal(t, day("2024-05-02"), run.LastActive)
}

func TestComputeRunIsIdempotent(t *testing.T) {
	dates := []time.Time{day("2024-04-01"), day("2024-04-02"), day("2024-04-04")}

	first := ComputeRun(dates)
	second := ComputeRun(dates)
	require.Equal(t, first, second)
}
