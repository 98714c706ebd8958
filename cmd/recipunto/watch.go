package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/recipunto/internal/app"
	"github.com/five82/recipunto/internal/events"
)

func newStorageCommand(configPath *string) *cobra.Command {
	storageCmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect the local store",
	}
	storageCmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List stored keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app.App) error {
				keys, err := a.Store.Keys(cmd.Context())
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Println(k)
				}
				return nil
			})
		},
	})
	storageCmd.AddCommand(&cobra.Command{
		Use:   "watch [key]",
		Short: "Print changes to a key, or to every key, until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := events.Wildcard
			if len(args) == 1 {
				key = args[0]
			}
			ctx := cmd.Context()
			return withApp(*configPath, func(a *app.App) error {
				if err := a.Start(ctx); err != nil {
					return err
				}
				sub, err := a.Bus.Listen(ctx, key, printEvent, key != events.Wildcard)
				if err != nil {
					return err
				}
				defer sub.Remove()
				<-ctx.Done()
				return nil
			})
		},
	})
	return storageCmd
}

func printEvent(ev events.Event) {
	fmt.Printf("%s %-7s %s %v\n", ev.Timestamp.Local().Format(time.TimeOnly), ev.Type, ev.Key, ev.Value)
}
