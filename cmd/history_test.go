package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/naka-gawa/github-badges/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHistory() domain.StatsHistory {
	return domain.StatsHistory{
		"octo/small": {
			Stars: 2, Clones: 50, Views: 10,
			History: map[string]domain.DayStats{"2024-01-01": {Stars: 2, Clones: 50, Views: 10}},
		},
		"octo/big": {
			Stars: 100, Clones: 5, Views: 90,
			History: map[string]domain.DayStats{
				"2024-01-01": {Stars: 90, Clones: 5, Views: 60},
				"2024-01-02": {Stars: 4, Views: 10},
				"2024-01-03": {Stars: 6, Views: 20},
			},
		},
	}
}

func TestSummarizeRecord(t *testing.T) {
	history := testHistory()

	big := summarizeRecord("octo/big", history["octo/big"])
	assert.Equal(t, 3, big.days)
	assert.Equal(t, "2024-01-03", big.lastRecord)
	assert.InDelta(t, 15.0, big.meanViews, 1e-9)

	small := summarizeRecord("octo/small", history["octo/small"])
	assert.Equal(t, 1, small.days)
	assert.Zero(t, small.meanViews)
}

func TestWriteHistoryTable(t *testing.T) {
	testCases := []struct {
		sortBy string
		first  string
	}{
		{sortBy: "stars", first: "octo/big"},
		{sortBy: "clones", first: "octo/small"},
		{sortBy: "views", first: "octo/big"},
		{sortBy: "name", first: "octo/big"},
	}

	for _, tc := range testCases {
		t.Run(tc.sortBy, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeHistoryTable(&buf, testHistory(), tc.sortBy))

			out := buf.String()
			assert.Contains(t, strings.ToUpper(out), "TOTAL: 2 REPOSITORIES")
			other := "octo/small"
			if tc.first == "octo/small" {
				other = "octo/big"
			}
			assert.Less(t, strings.Index(out, tc.first), strings.Index(out, other))
		})
	}
}

func TestWriteHistoryTable_UnknownSort(t *testing.T) {
	err := writeHistoryTable(&bytes.Buffer{}, testHistory(), "forks")
	assert.Error(t, err)
}
