package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/reframe/internal/timeline"
	"github.com/andresmejia3/reframe/internal/utils"
)

var (
	resetDB    bool
	resetFiles bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Database, Output Videos)",
	Long: "Clears recorded runs. By default, it resets everything: the output videos and artifacts of every " +
		"recorded run are deleted and the database tables are dropped. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
		reader := bufio.NewReader(os.Stdin)

		// Files first: their paths live in the tables about to be dropped.
		if resetFiles {
			if confirm(reader, "⚠️  Are you sure you want to delete the output videos of all recorded runs?") {
				runs, err := s.ListRuns(ctx, 0)
				if err != nil {
					utils.ShowError("Failed to list runs", err, nil)
					return err
				}
				fmt.Println("🗑️  Clearing Output Files (Videos, Timelines, Coordinates)...")
				for _, r := range runs {
					tl, coords := timeline.ArtifactPaths(r.Output)
					removeFile(r.Output)
					removeFile(tl)
					removeFile(coords)
				}
			}
		}

		if resetDB {
			if confirm(reader, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := s.Reset(ctx); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "tables", false, "Drop the database tables")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Delete output videos and their artifacts")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
