package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/five82/recipunto/internal/app"
	"github.com/five82/recipunto/internal/backend"
	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/form"
)

func newBoxesCommand(configPath *string) *cobra.Command {
	boxesCmd := &cobra.Command{
		Use:   "boxes",
		Short: "List and edit recycling boxes",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List boxes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")
			key, ok := map[box.Status]string{
				box.StatusAll:       app.CacheAll,
				box.StatusFull:      app.CacheFull,
				box.StatusAvailable: app.CacheAvailable,
			}[box.Status(status)]
			if !ok {
				return fmt.Errorf("status must be all, full or available, got %q", status)
			}
			return withApp(*configPath, func(a *app.App) error {
				boxes, err := a.ListBoxes(cmd.Context(), key)
				if err != nil {
					return err
				}
				printBoxes(boxes)
				return nil
			})
		},
	}
	listCmd.Flags().String("status", string(box.StatusAll), "filter by status (all, full, available)")

	draftCmd := &cobra.Command{
		Use:   "draft",
		Short: "Show or edit the saved new-box draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reset, _ := cmd.Flags().GetBool("reset")
			return withApp(*configPath, func(a *app.App) error {
				switch {
				case reset:
					a.BoxForm.Clear()
				case applyDraftFlags(cmd.Flags(), a.BoxForm):
					if err := a.BoxForm.Save(cmd.Context()); err != nil {
						fmt.Fprintf(os.Stderr, "draft incomplete: %v\n", err)
					}
				}
				printDraft(a.BoxForm.Data())
				return nil
			})
		},
	}
	addDraftFlags(draftCmd.Flags())
	draftCmd.Flags().Bool("reset", false, "discard the draft")

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new box from the draft",
		Long: "Flags are merged into the saved draft before it is submitted. A draft that\n" +
			"fails to submit is kept, so the next create only needs the missing flags.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app.App) error {
				applyDraftFlags(cmd.Flags(), a.BoxForm)
				if a.Syncer == nil {
					return errOffline(a)
				}
				b, err := a.SubmitBox(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("created %s at %s\n", b.ID, box.FormatCoordinates(b.Lat, b.Lng))
				return nil
			})
		},
	}
	addDraftFlags(createCmd.Flags())

	moveCmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a box you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			return editBox(cmd, *configPath, args[0], backend.UpdateInput{Lat: &lat, Lng: &lng})
		},
	}
	moveCmd.Flags().Float64("lat", 0, "new latitude (required)")
	moveCmd.Flags().Float64("lng", 0, "new longitude (required)")
	_ = moveCmd.MarkFlagRequired("lat")
	_ = moveCmd.MarkFlagRequired("lng")

	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the columns of a box you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editBox(cmd, *configPath, args[0], updateFromFlags(cmd.Flags()))
		},
	}
	editCmd.Flags().Float64("lat", 0, "latitude")
	editCmd.Flags().Float64("lng", 0, "longitude")
	editCmd.Flags().Int("capacity", 0, "container capacity")
	editCmd.Flags().Int("amount", 0, "current amount")
	editCmd.Flags().Bool("full", false, "mark the box full or not full")

	statusCmd := &cobra.Command{
		Use:   "status <id> <amount>",
		Short: "Set the fill level of a box",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("amount must be a whole number: %w", err)
			}
			var isFull *bool
			if cmd.Flags().Changed("full") {
				v, _ := cmd.Flags().GetBool("full")
				isFull = &v
			}
			return withApp(*configPath, func(a *app.App) error {
				if a.Syncer != nil {
					// Load the collection so recycled containers are credited.
					if err := a.Syncer.Refresh(cmd.Context()); err != nil {
						return err
					}
				}
				b, err := a.UpdateStatus(cmd.Context(), args[0], amount, isFull)
				if err != nil {
					return err
				}
				printBoxLine(b)
				return nil
			})
		},
	}
	statusCmd.Flags().Bool("full", false, "mark the box full or not full explicitly")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app.App) error {
				if a.Syncer == nil {
					return errOffline(a)
				}
				if err := a.Syncer.DeleteBox(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}

	boxesCmd.AddCommand(listCmd, draftCmd, createCmd, moveCmd, editCmd, statusCmd, deleteCmd)
	return boxesCmd
}

func addDraftFlags(fs *pflag.FlagSet) {
	fs.Float64("lat", 0, "latitude")
	fs.Float64("lng", 0, "longitude")
	fs.Int("capacity", form.DefaultBoxDraft().Capacity, "container capacity")
	fs.Int("amount", 0, "current amount")
	fs.Bool("full", false, "mark the box full")
	fs.String("notes", "", "free-form notes kept with the draft")
}

// applyDraftFlags merges the flags the user set into the draft and reports
// whether any were set.
func applyDraftFlags(fs *pflag.FlagSet, f *form.Form[form.BoxDraft]) bool {
	var setters []form.Setter[form.BoxDraft]
	if fs.Changed("lat") {
		v, _ := fs.GetFloat64("lat")
		setters = append(setters, form.BoxLat.Set(v))
	}
	if fs.Changed("lng") {
		v, _ := fs.GetFloat64("lng")
		setters = append(setters, form.BoxLng.Set(v))
	}
	if fs.Changed("capacity") {
		v, _ := fs.GetInt("capacity")
		setters = append(setters, form.BoxCapacity.Set(v))
	}
	if fs.Changed("amount") {
		v, _ := fs.GetInt("amount")
		setters = append(setters, form.BoxCurrentAmount.Set(v))
	}
	if fs.Changed("full") {
		v, _ := fs.GetBool("full")
		setters = append(setters, form.BoxIsFull.Set(v))
	}
	if fs.Changed("notes") {
		v, _ := fs.GetString("notes")
		setters = append(setters, form.BoxNotes.Set(v))
	}
	if len(setters) == 0 {
		return false
	}
	f.UpdateFields(setters...)
	return true
}

// updateFromFlags sends only the columns the user set.
func updateFromFlags(fs *pflag.FlagSet) backend.UpdateInput {
	var in backend.UpdateInput
	if fs.Changed("lat") {
		v, _ := fs.GetFloat64("lat")
		in.Lat = &v
	}
	if fs.Changed("lng") {
		v, _ := fs.GetFloat64("lng")
		in.Lng = &v
	}
	if fs.Changed("capacity") {
		v, _ := fs.GetInt("capacity")
		in.Capacity = &v
	}
	if fs.Changed("amount") {
		v, _ := fs.GetInt("amount")
		in.CurrentAmount = &v
	}
	if fs.Changed("full") {
		v, _ := fs.GetBool("full")
		in.IsFull = &v
	}
	return in
}

func editBox(cmd *cobra.Command, configPath, id string, in backend.UpdateInput) error {
	if in == (backend.UpdateInput{}) {
		return errors.New("nothing to change, pass at least one flag")
	}
	return withApp(configPath, func(a *app.App) error {
		if a.Syncer == nil {
			return errOffline(a)
		}
		b, err := a.EditBox(cmd.Context(), id, in)
		if err != nil {
			return err
		}
		printBoxLine(b)
		return nil
	})
}

func errOffline(a *app.App) error {
	return a.Config.RequireBackend()
}

func printBoxLine(b box.Box) {
	fmt.Printf("%s %s %s %s\n", b.ID, box.FormatCoordinates(b.Lat, b.Lng),
		box.FormatCapacity(b.CurrentAmount, b.Capacity), box.FormatStatus(b.IsFull))
}

func printDraft(d form.BoxDraft) {
	fmt.Printf("location:  %s\n", box.FormatCoordinates(d.Lat, d.Lng))
	fmt.Printf("fill:      %s %s\n", box.FormatCapacity(d.CurrentAmount, d.Capacity), box.FormatStatus(d.IsFull))
	if d.Notes != "" {
		fmt.Printf("notes:     %s\n", d.Notes)
	}
}

func printBoxes(boxes []box.Box) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLOCATION\tFILL\tSTATUS\tUPDATED")
	for _, b := range boxes {
		updated := "-"
		if !b.LastUpdated.IsZero() {
			updated = b.LastUpdated.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			b.ID,
			box.FormatCoordinates(b.Lat, b.Lng),
			box.FormatCapacity(b.CurrentAmount, b.Capacity),
			box.FormatStatus(b.IsFull),
			updated)
	}
	_ = w.Flush()
	st := box.Summarize(boxes)
	fmt.Printf("\n%d boxes, %d full, %s used\n", st.Total, st.Full, box.FormatPercentage(st.UtilizationRate, 1))
}
