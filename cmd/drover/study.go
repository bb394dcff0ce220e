package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/drover/pkg/client"
)

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Manage the study catalog",
}

var studyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List synced studies",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		studies, total, err := c.ListStudies(client.Page{Limit: 100})
		if err != nil {
			return fmt.Errorf("failed to list studies: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KF ID\tNAME\tVISIBLE\tVERSION")
		for _, study := range studies {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n",
				study.KfID, study.Name, study.Visible, study.LatestVersion)
		}
		w.Flush()
		fmt.Printf("\nShowing %d of %d studies\n", len(studies), total)
		return nil
	},
}

var studySyncCmd = &cobra.Command{
	Use:   "sync KF_ID NAME",
	Short: "Upsert a study catalog entry",
	Long: `Upsert a study catalog entry.

Studies are minted upstream; sync mirrors their current shape into the
coordinator so releases can reference them. Re-syncing an existing
kf_id overwrites its fields.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		visible, _ := cmd.Flags().GetBool("visible")
		version, _ := cmd.Flags().GetString("latest-version")

		study, err := c.SyncStudy(client.StudyInput{
			KfID:          args[0],
			Name:          args[1],
			Visible:       visible,
			LatestVersion: version,
		})
		if err != nil {
			return fmt.Errorf("failed to sync study: %v", err)
		}

		fmt.Printf("✓ Study synced: %s (%s)\n", study.KfID, study.Name)
		return nil
	},
}

func init() {
	studyCmd.PersistentFlags().String("server", "http://localhost:8080", "Coordinator API address")

	studySyncCmd.Flags().Bool("visible", true, "Study is visible to release pickers")
	studySyncCmd.Flags().String("latest-version", "", "Most recent published version")

	studyCmd.AddCommand(studyListCmd)
	studyCmd.AddCommand(studySyncCmd)
	rootCmd.AddCommand(studyCmd)
}
