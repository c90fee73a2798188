package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/arlens/burrow/internal/store"
)

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Inspect or edit the favourite paths",
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Inspect or clear the recent scan roots",
}

var (
	favoritesDataDir string
	recentDataDir    string
)

func init() {
	favoritesCmd.PersistentFlags().StringVar(&favoritesDataDir, "data-dir", "./data", "Directory holding favorites.json")
	recentCmd.PersistentFlags().StringVar(&recentDataDir, "data-dir", "./data", "Directory holding recent-scans.json")

	favoritesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List favourite paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range openFavorites().List() {
				fmt.Println(p)
			}
			return nil
		},
	})
	favoritesCmd.AddCommand(&cobra.Command{
		Use:   "add <path>",
		Short: "Add a favourite path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := openFavorites().Add(args[0])
			return err
		},
	})
	favoritesCmd.AddCommand(&cobra.Command{
		Use:   "remove <path>",
		Short: "Remove a favourite path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := openFavorites().Remove(args[0])
			return err
		},
	})

	recentCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recent scan roots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := openRecent().List()
			if err != nil {
				return err
			}
			for _, p := range items {
				fmt.Println(p)
			}
			return nil
		},
	})
	recentCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget all recent scan roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return openRecent().Clear()
		},
	})
}

func openFavorites() *store.Favorites {
	return store.NewFavorites(store.FixedPath(filepath.Join(favoritesDataDir, "favorites.json")))
}

func openRecent() *store.Recent {
	return store.NewRecent(store.FixedPath(filepath.Join(recentDataDir, "recent-scans.json")), 0)
}
