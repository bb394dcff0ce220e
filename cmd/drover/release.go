package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/drover/pkg/client"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Manage releases",
}

var releaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List releases",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		releases, total, err := c.ListReleases(client.Page{Limit: limit, Offset: offset})
		if err != nil {
			return fmt.Errorf("failed to list releases: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KF ID\tNAME\tSTATE\tSTUDIES\tCREATED")
		for _, r := range releases {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.KfID, r.Name, r.State, strings.Join(r.Studies, ","),
				r.CreatedAt.Local().Format(time.DateTime))
		}
		w.Flush()
		fmt.Printf("\nShowing %d of %d releases\n", len(releases), total)
		return nil
	},
}

var releaseGetCmd = &cobra.Command{
	Use:   "get KF_ID",
	Short: "Show one release and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		release, err := c.GetRelease(args[0])
		if err != nil {
			return fmt.Errorf("failed to get release: %v", err)
		}

		fmt.Printf("Release:     %s\n", release.KfID)
		fmt.Printf("  Name:        %s\n", release.Name)
		fmt.Printf("  State:       %s\n", release.State)
		fmt.Printf("  Author:      %s\n", release.Author)
		fmt.Printf("  Studies:     %s\n", strings.Join(release.Studies, ", "))
		if len(release.Tags) > 0 {
			fmt.Printf("  Tags:        %s\n", strings.Join(release.Tags, ", "))
		}
		if release.Description != "" {
			fmt.Printf("  Description: %s\n", release.Description)
		}
		fmt.Printf("  Created:     %s\n", release.CreatedAt.Local().Format(time.DateTime))

		tasks, _, err := c.ListTasks(release.KfID, client.Page{Limit: 100})
		if err != nil {
			return fmt.Errorf("failed to list tasks: %v", err)
		}
		if len(tasks) == 0 {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tSERVICE\tSTATE\tPROGRESS")
		for _, task := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\n",
				task.KfID, task.TaskServiceID, task.State, task.Progress)
		}
		w.Flush()
		return nil
	},
}

var releaseCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a release and start coordinating it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		studies, _ := cmd.Flags().GetStringArray("study")
		tags, _ := cmd.Flags().GetStringArray("tag")
		description, _ := cmd.Flags().GetString("description")
		author, _ := cmd.Flags().GetString("author")

		release, err := c.CreateRelease(client.ReleaseInput{
			Name:        args[0],
			Description: description,
			Author:      author,
			Tags:        tags,
			Studies:     studies,
		})
		if err != nil {
			return fmt.Errorf("failed to create release: %v", err)
		}

		fmt.Printf("✓ Release created: %s (state: %s)\n", release.KfID, release.State)
		fmt.Println("Coordination runs in the background; watch it with 'drover release get'.")
		return nil
	},
}

var releasePublishCmd = &cobra.Command{
	Use:   "publish KF_ID",
	Short: "Publish a staged release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		release, err := c.PublishRelease(args[0])
		if err != nil {
			return fmt.Errorf("failed to publish release: %v", err)
		}

		fmt.Printf("✓ Publish started: %s (state: %s)\n", release.KfID, release.State)
		return nil
	},
}

var releaseCancelCmd = &cobra.Command{
	Use:   "cancel KF_ID",
	Short: "Cancel a release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		release, err := c.CancelRelease(args[0])
		if err != nil {
			return fmt.Errorf("failed to cancel release: %v", err)
		}

		fmt.Printf("✓ Cancel requested: %s (state: %s)\n", release.KfID, release.State)
		return nil
	},
}

var releaseEventsCmd = &cobra.Command{
	Use:   "events KF_ID",
	Short: "Show the journal of a release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		limit, _ := cmd.Flags().GetInt("limit")

		events, total, err := c.ListEvents(client.EventFilter{Release: args[0]}, client.Page{Limit: limit})
		if err != nil {
			return fmt.Errorf("failed to list events: %v", err)
		}

		for _, event := range events {
			fmt.Printf("%s  %-7s  %s\n",
				event.CreatedAt.Local().Format(time.DateTime), event.Type, event.Message)
		}
		if total > len(events) {
			fmt.Printf("\nShowing %d of %d events\n", len(events), total)
		}
		return nil
	},
}

func init() {
	releaseCmd.PersistentFlags().String("server", "http://localhost:8080", "Coordinator API address")

	releaseListCmd.Flags().Int("limit", 0, "Page size")
	releaseListCmd.Flags().Int("offset", 0, "Page offset")

	releaseCreateCmd.Flags().StringArray("study", nil, "Study kf_id to include (repeatable)")
	releaseCreateCmd.Flags().StringArray("tag", nil, "Tag to attach (repeatable)")
	releaseCreateCmd.Flags().String("description", "", "Release description")
	releaseCreateCmd.Flags().String("author", "", "Release author")
	_ = releaseCreateCmd.MarkFlagRequired("study")

	releaseEventsCmd.Flags().Int("limit", 50, "Maximum events to show")

	releaseCmd.AddCommand(releaseListCmd)
	releaseCmd.AddCommand(releaseGetCmd)
	releaseCmd.AddCommand(releaseCreateCmd)
	releaseCmd.AddCommand(releasePublishCmd)
	releaseCmd.AddCommand(releaseCancelCmd)
	releaseCmd.AddCommand(releaseEventsCmd)
	rootCmd.AddCommand(releaseCmd)
}

// apiClient builds a REST client from the --server flag.
func apiClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.NewClient(server)
}
