package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/naka-gawa/github-badges/internal/config"
	"github.com/naka-gawa/github-badges/internal/domain"
	"github.com/naka-gawa/github-badges/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Prints the persisted repository history as a table",
	Long: `Reads the repository history written by "generate" and prints the cumulative
stars, clones and views of every tracked repository. No token is needed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sortBy, _ := cmd.Flags().GetString("sort")
		history, err := store.NewHistoryStore(viper.GetString(config.KeyStatsFile)).Load()
		if err != nil {
			return err
		}
		return writeHistoryTable(cmd.OutOrStdout(), history, sortBy)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("sort", "stars", "Sort column: stars, clones, views or name")
}

type historyRow struct {
	repo       string
	record     *domain.RepoStatRecord
	days       int
	meanViews  float64
	lastRecord string
}

func writeHistoryTable(w io.Writer, history domain.StatsHistory, sortBy string) error {
	rows := make([]historyRow, 0, len(history))
	for repo, rec := range history {
		rows = append(rows, summarizeRecord(repo, rec))
	}

	less, ok := historySorters[sortBy]
	if !ok {
		return fmt.Errorf("unknown sort column %q", sortBy)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].repo < rows[j].repo })
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Repository", "Stars", "Clones", "Views", "Days", "Mean daily views", "Last recorded"})
	for _, row := range rows {
		tbl.AppendRow(table.Row{
			row.repo,
			row.record.Stars,
			row.record.Clones,
			row.record.Views,
			row.days,
			fmt.Sprintf("%.1f", row.meanViews),
			row.lastRecord,
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d repositories", len(rows))})
	tbl.Render()
	return nil
}

var historySorters = map[string]func(a, b historyRow) bool{
	"stars":  func(a, b historyRow) bool { return a.record.Stars > b.record.Stars },
	"clones": func(a, b historyRow) bool { return a.record.Clones > b.record.Clones },
	"views":  func(a, b historyRow) bool { return a.record.Views > b.record.Views },
	"name":   func(a, b historyRow) bool { return a.repo < b.repo },
}

// summarizeRecord computes the per-repository figures shown in the table. The first history
// entry holds absolute values, so only the later deltas count towards the daily mean.
func summarizeRecord(repo string, rec *domain.RepoStatRecord) historyRow {
	row := historyRow{repo: repo, record: rec, days: len(rec.History)}

	dates := make([]string, 0, len(rec.History))
	for date := range rec.History {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	if len(dates) > 0 {
		row.lastRecord = dates[len(dates)-1]
	}
	if len(dates) < 2 {
		return row
	}

	views := make(stats.Float64Data, 0, len(dates)-1)
	for _, date := range dates[1:] {
		views = append(views, float64(rec.History[date].Views))
	}
	if mean, err := stats.Mean(views); err == nil {
		row.meanViews = mean
	}
	return row
}
