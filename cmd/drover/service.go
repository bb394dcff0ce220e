package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/drover/pkg/client"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage task services",
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered task services",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		services, total, err := c.ListTaskServices(client.Page{Limit: 100})
		if err != nil {
			return fmt.Errorf("failed to list services: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KF ID\tNAME\tURL\tENABLED\tHEALTH")
		for _, svc := range services {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
				svc.KfID, svc.Name, svc.URL, svc.Enabled, svc.Health)
		}
		w.Flush()
		fmt.Printf("\nShowing %d of %d services\n", len(services), total)
		return nil
	},
}

var serviceRegisterCmd = &cobra.Command{
	Use:   "register NAME URL",
	Short: "Register a task service",
	Long: `Register a task service with the coordinator.

The service must answer GET <url>/status and accept commands on
POST <url>/tasks. Newly registered services are enabled and join the
fan-out of every release created afterwards.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		description, _ := cmd.Flags().GetString("description")
		author, _ := cmd.Flags().GetString("author")

		svc, err := c.RegisterTaskService(client.TaskServiceInput{
			Name:        args[0],
			URL:         args[1],
			Description: description,
			Author:      author,
		})
		if err != nil {
			return fmt.Errorf("failed to register service: %v", err)
		}

		fmt.Printf("✓ Service registered: %s (ID: %s)\n", svc.Name, svc.KfID)
		return nil
	},
}

var serviceEnableCmd = &cobra.Command{
	Use:   "enable KF_ID",
	Short: "Enable a task service",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setServiceEnabled(cmd, args[0], true) },
}

var serviceDisableCmd = &cobra.Command{
	Use:   "disable KF_ID",
	Short: "Disable a task service",
	Long: `Disable a task service.

Disabled services are skipped when new releases fan out. Tasks already
created for the service keep running.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return setServiceEnabled(cmd, args[0], false) },
}

func setServiceEnabled(cmd *cobra.Command, id string, enabled bool) error {
	c := apiClient(cmd)
	defer c.Close()

	svc, err := c.UpdateTaskService(id, client.TaskServiceUpdate{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("failed to update service: %v", err)
	}

	verb := "disabled"
	if svc.Enabled {
		verb = "enabled"
	}
	fmt.Printf("✓ Service %s: %s\n", verb, svc.KfID)
	return nil
}

var serviceRemoveCmd = &cobra.Command{
	Use:   "remove KF_ID",
	Short: "Remove a task service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		svc, err := c.DeleteTaskService(args[0])
		if err != nil {
			return fmt.Errorf("failed to remove service: %v", err)
		}

		fmt.Printf("✓ Service removed: %s (%s)\n", svc.Name, svc.KfID)
		return nil
	},
}

var serviceCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a health sweep over all services now",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		defer c.Close()

		if err := c.TriggerHealthChecks(); err != nil {
			return fmt.Errorf("failed to trigger health checks: %v", err)
		}

		fmt.Println("✓ Health checks enqueued")
		fmt.Println("Results land on each service's health status; see 'drover service list'.")
		return nil
	},
}

func init() {
	serviceCmd.PersistentFlags().String("server", "http://localhost:8080", "Coordinator API address")

	serviceRegisterCmd.Flags().String("description", "", "Service description")
	serviceRegisterCmd.Flags().String("author", "", "Registering author")

	serviceCmd.AddCommand(serviceListCmd)
	serviceCmd.AddCommand(serviceRegisterCmd)
	serviceCmd.AddCommand(serviceEnableCmd)
	serviceCmd.AddCommand(serviceDisableCmd)
	serviceCmd.AddCommand(serviceRemoveCmd)
	serviceCmd.AddCommand(serviceCheckCmd)
	rootCmd.AddCommand(serviceCmd)
}
