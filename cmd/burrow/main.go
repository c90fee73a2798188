package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "A file-explorer scan backend",
	Long: `burrow walks directory trees without blocking its callers, streams
partial results to observers as they are discovered, and persists
favourites, recent roots, and user settings across restarts. The serve
command exposes the request and event surfaces to a visualisation
front-end over HTTP.`,
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(recentCmd)
}
