package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arlens/burrow/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently completed scans",
	RunE:  runHistory,
}

var (
	historyDataDir string
	historyLimit   int
)

func init() {
	historyCmd.Flags().StringVar(&historyDataDir, "data-dir", "./data", "Directory holding history.db")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dataDir, err := filepath.Abs(historyDataDir)
	if err != nil {
		return err
	}
	hist, err := history.Open(filepath.Join(dataDir, "history.db"))
	if err != nil {
		return err
	}
	defer hist.Close()

	entries, err := hist.List(historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No scans recorded yet.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%-19s  %-9s  %8s dirs  %8s files  %4d errors  %s\n",
			e.FinishedAt.Format("2006-01-02 15:04:05"), e.Status,
			humanize.Comma(int64(e.Dirs)), humanize.Comma(int64(e.Files)),
			e.Errors, e.Root)
	}
	return nil
}
