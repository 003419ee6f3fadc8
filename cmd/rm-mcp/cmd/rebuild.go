package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Drop the search index and re-derive it from cached text",
	Long: `rebuild clears the full-text index and reindexes every extracted
text still matching a live document version. Documents never read have no
cached text and reappear in the index on their next read.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := buildServices(ctx)
		if err != nil {
			return err
		}
		defer svc.close()

		n, err := svc.Search.Rebuild(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("reindexed %d documents\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
