package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded batch runs, or show one run",
	Long: `Lists batch runs stored in the history database, newest first. With a run id
the full record, including every failure, is printed. History must be enabled
with [storage.badger] enabled = true or ASSAY_HISTORY_ENABLED=true.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyOpts struct {
	limit     int
	operation string
	format    string
	clear     bool
}

func init() {
	f := historyCmd.Flags()
	f.IntVarP(&historyOpts.limit, "limit", "n", 20, "Number of runs to list (0 for all)")
	f.StringVar(&historyOpts.operation, "operation", "", "Only list runs of this operation")
	f.StringVar(&historyOpts.format, "format", "", "Print as json or yaml instead of a table")
	f.BoolVar(&historyOpts.clear, "clear", false, "Delete all recorded runs")
}

func history() (interfaces.HistoryStorage, error) {
	if application.History == nil {
		return nil, apperr.InvalidParameter("run history is disabled")
	}
	return application.History, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := history()
	if err != nil {
		return err
	}

	if historyOpts.clear {
		if err := store.DeleteAllRuns(ctx); err != nil {
			return err
		}
		fmt.Println("history cleared")
		return nil
	}

	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		format := historyOpts.format
		if format == "" {
			format = "yaml"
		}
		return writeValue("", format, run)
	}

	var runs []*models.RunRecord
	if historyOpts.operation != "" {
		runs, err = store.ListRunsByOperation(ctx, historyOpts.operation)
		if historyOpts.limit > 0 && len(runs) > historyOpts.limit {
			runs = runs[:historyOpts.limit]
		}
	} else {
		runs, err = store.ListRuns(ctx, historyOpts.limit)
	}
	if err != nil {
		return err
	}
	if historyOpts.format != "" {
		return writeValue("", historyOpts.format, runs)
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	fmt.Printf("%-36s  %-10s  %-19s  %5s  %5s  %5s\n", "ID", "OPERATION", "STARTED", "TOTAL", "OK", "FAIL")
	for _, run := range runs {
		fmt.Printf("%-36s  %-10s  %-19s  %5d  %5d  %5d\n",
			run.ID, run.Operation, run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Total, run.Succeeded, run.Failed)
	}
	return nil
}
