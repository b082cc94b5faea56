package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillsift/skillsift/internal/docstore"
)

var mongoCmd = &cobra.Command{
	Use:   "mongo",
	Short: "Manage the local MongoDB container",
	Long: `Manage the local MongoDB container used for development.

Data is persisted to ~/.skillsift/mongodb/.

Examples:
  skillsift mongo start   # Start the MongoDB container
  skillsift mongo stop    # Stop the container (data preserved)
  skillsift mongo status  # Check container status`,
}

var mongoStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the MongoDB container",
	Long: `Start the MongoDB container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getMongoManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting MongoDB...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MongoDB: %w", err)
		}

		fmt.Printf("MongoDB is running at %s\n", mgr.URI())
		return nil
	},
}

var mongoStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the MongoDB container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getMongoManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping MongoDB...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop MongoDB: %w", err)
		}

		fmt.Println("MongoDB stopped")
		return nil
	},
}

var mongoStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show MongoDB container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getMongoManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case docstore.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URI: %s\n", mgr.URI())
		case docstore.StatusStopped:
			fmt.Printf("Status: %s (use 'skillsift mongo start' to start)\n", status)
		case docstore.StatusNotFound:
			fmt.Printf("Status: %s (use 'skillsift mongo start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var mongoRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the MongoDB container",
	Long: `Remove the MongoDB container.

This stops and removes the container. Data in ~/.skillsift/mongodb/
is NOT deleted - only the container is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getMongoManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing MongoDB container...")
		if err := mgr.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("MongoDB container removed (data preserved)")
		return nil
	},
}

func init() {
	mongoCmd.AddCommand(mongoStartCmd)
	mongoCmd.AddCommand(mongoStopCmd)
	mongoCmd.AddCommand(mongoStatusCmd)
	mongoCmd.AddCommand(mongoRemoveCmd)

	rootCmd.AddCommand(mongoCmd)
}

// getMongoManager creates a DockerManager with data persisted under the
// user's skillsift directory.
func getMongoManager() (*docstore.DockerManager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dataPath := filepath.Join(home, ".skillsift", "mongodb")
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return docstore.NewDockerManager(docstore.DockerConfig{
		DataPath: dataPath,
	})
}
