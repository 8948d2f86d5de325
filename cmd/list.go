package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/reframe/internal/store"
	"github.com/andresmejia3/reframe/internal/utils"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runList(cmd.Context())
	},
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) error {
	s, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Database unavailable", err, nil)
		return err
	}
	runs, err := s.ListRuns(ctx, listLimit)
	if err != nil {
		utils.ShowError("Failed to list runs", err, nil)
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found in database.")
		return nil
	}
	fmt.Println(renderRuns(runs))
	return nil
}

func renderRuns(runs []store.Run) string {
	headers := []string{"ID", "Created", "Source", "Clip", "Range", "Frames", "Segments", "Dual", "Detector"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID.String(),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			filepath.Base(r.Source),
			strconv.Itoa(r.Clip),
			fmtTime(r.Start) + " -> " + fmtTime(r.End),
			strconv.Itoa(r.Frames),
			strconv.Itoa(r.Segments),
			fmtTime(r.Dual),
			r.Detector,
		})
	}
	return renderTable(headers, rows, []columnAlignment{
		alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight,
	})
}
