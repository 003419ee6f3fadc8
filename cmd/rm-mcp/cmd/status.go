package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Sync with the cloud and print library statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := buildServices(ctx)
		if err != nil {
			return err
		}
		defer svc.close()

		t, err := svc.Sync.Tree(ctx)
		if err != nil {
			return err
		}
		docs, folders := 0, 0
		for _, m := range t.All() {
			if m.IsFolder() {
				folders++
			} else {
				docs++
			}
		}
		indexed, _ := svc.Search.Indexed(ctx)

		fmt.Printf("state:      %s\n", svc.Sync.State())
		fmt.Printf("documents:  %d\n", docs)
		fmt.Printf("folders:    %d\n", folders)
		fmt.Printf("indexed:    %d\n", indexed)
		fmt.Printf("root scope: %s\n", svc.Config.RootPath)
		fmt.Printf("index:      %s\n", svc.Config.IndexPath)
		if t.Partial {
			fmt.Println("warning: last sync was partial")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
