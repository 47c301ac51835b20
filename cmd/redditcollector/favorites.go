package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var favoritesStorePath string

// favoritesCmd groups the favorite management subcommands
var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage favorited posts",
	Long: `Manage the set of favorited post IDs.

Favorites gate video downloads when videos_only_from_favorites is enabled:
videos are skipped unless their post has been favorited first.`,
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <post-id>",
	Short: "Mark a post as favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(favoritesStorePath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.AddFavorite(args[0]); err != nil {
			return err
		}
		fmt.Printf("favorited %s\n", args[0])
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <post-id>",
	Short: "Remove a post from favorites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(favoritesStorePath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RemoveFavorite(args[0]); err != nil {
			return err
		}
		fmt.Printf("unfavorited %s\n", args[0])
		return nil
	},
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorited post IDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(favoritesStorePath)
		if err != nil {
			return err
		}
		defer st.Close()

		ids, err := st.Favorites()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no favorites")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(favoritesCmd)
	favoritesCmd.AddCommand(favoritesAddCmd, favoritesRemoveCmd, favoritesListCmd)

	favoritesCmd.PersistentFlags().StringVar(&favoritesStorePath, "store", "", "path to the metadata store")
}
