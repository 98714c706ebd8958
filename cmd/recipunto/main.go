package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "recipunto: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "recipunto",
		Short:         "Recycling box client",
		Long:          "recipunto tracks shared recycling boxes, their fill levels and your collection activity.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "override config path (optional)")

	root.AddCommand(newTUICommand(&configPath))
	root.AddCommand(newBoxesCommand(&configPath))
	root.AddCommand(newCacheCommand(&configPath))
	root.AddCommand(newLoginCommand(&configPath))
	root.AddCommand(newLogoutCommand(&configPath))
	root.AddCommand(newWhoamiCommand(&configPath))
	root.AddCommand(newTasksCommand(&configPath))
	root.AddCommand(newTogglesCommand(&configPath))
	root.AddCommand(newProfileCommand(&configPath))
	root.AddCommand(newStorageCommand(&configPath))
	return root
}
