package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/recipunto/internal/app"
	"github.com/five82/recipunto/internal/tasks"
	"github.com/five82/recipunto/internal/toggles"
	"github.com/five82/recipunto/internal/ui"
)

// withApp opens the app for a one-shot command. Logs go to the log file so
// command output stays clean.
func withApp(configPath string, fn func(a *app.App) error) error {
	a, err := app.Open(app.Options{ConfigPath: configPath, LogToFile: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newTUICommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal interface (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), *configPath)
		},
	}
}

func runTUI(ctx context.Context, configPath string) error {
	return withApp(configPath, func(a *app.App) error {
		if err := a.Start(ctx); err != nil {
			return err
		}

		opts := ui.Options{
			Context:       ctx,
			Selection:     a.Selection,
			Toggles:       a.Toggles,
			Search:        a.Search,
			Notifications: a.Notifications,
			Tracker:       a.Tracker,
			Tasks:         a.Tasks,
		}
		if a.Syncer != nil {
			opts.Source = a.Syncer
			opts.UpdateStatus = a.UpdateStatus
		} else {
			cached, _ := a.Boxes.GetCached(app.CacheAll)
			opts.Source = ui.StaticSource(cached)
		}
		return ui.Run(ctx, opts)
	})
}

func newCacheCommand(configPath *string) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local box cache",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app.App) error {
				st := a.Boxes.Stats()
				fmt.Printf("entries:   %d (%d expired)\n", st.TotalItems, st.ExpiredItems)
				fmt.Printf("accesses:  %d (avg %.1f)\n", st.TotalAccesses, st.AverageAccessCount)
				if st.TotalItems > 0 {
					fmt.Printf("oldest:    %s\n", st.Oldest.Local().Format(time.DateTime))
					fmt.Printf("newest:    %s\n", st.Newest.Local().Format(time.DateTime))
				}
				if keys := a.Boxes.Keys(); len(keys) > 0 {
					fmt.Printf("keys:      %s\n", strings.Join(keys, ", "))
				}
				return nil
			})
		},
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear [key]",
		Short: "Drop one cache entry, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app.App) error {
				if len(args) == 1 {
					a.Boxes.Invalidate(args[0])
				} else {
					a.Boxes.InvalidateAll()
				}
				fmt.Println("cache cleared")
				return nil
			})
		},
	})
	return cacheCmd
}

func newLoginCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in, or create an account with --signup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			signup, _ := cmd.Flags().GetBool("signup")
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			return withApp(*configPath, func(a *app.App) error {
				if a.Auth == nil {
					return errOffline(a)
				}
				if signup {
					u, signedIn, err := a.Auth.SignUp(cmd.Context(), email, password)
					if err != nil {
						return err
					}
					if !signedIn {
						fmt.Printf("account created for %s, confirm the email before signing in\n", u.Email)
						return nil
					}
					fmt.Printf("signed up as %s\n", u.Email)
					return nil
				}
				u, err := a.Auth.SignIn(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				fmt.Printf("signed in as %s\n", u.Email)
				return nil
			})
		},
	}
	cmd.Flags().String("email", "", "account email (required)")
	cmd.Flags().Bool("signup", false, "create the account first")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword takes the password from RECIPUNTO_PASSWORD or the first line
// of stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	if p := os.Getenv("RECIPUNTO_PASSWORD"); p != "" {
		return p, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app.App) error {
				if a.Auth == nil {
					return errOffline(a)
				}
				if err := a.Auth.SignOut(cmd.Context()); err != nil {
					fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				}
				fmt.Println("signed out")
				return nil
			})
		},
	}
}

func newWhoamiCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app.App) error {
				if a.Auth != nil {
					if u, ok := a.Auth.User(); ok {
						fmt.Printf("user:      %s (%s)\n", u.Email, u.ID)
						printProfile(cmd.Context(), a)
					} else {
						fmt.Println("user:      not signed in")
					}
				}
				st := a.Tracker.Stats()
				fmt.Printf("level:     %d (%d points)\n", st.Level, st.Points)
				fmt.Printf("created:   %d boxes\n", st.BoxesCreated)
				fmt.Printf("updates:   %d\n", st.BoxesUpdated)
				fmt.Printf("recycled:  %d containers, %.1f kg CO2\n", st.ContainersRecycled, st.CO2Saved)
				return nil
			})
		},
	}
}

func newTasksCommand(configPath *string) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage local recycling tasks",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			search, _ := cmd.Flags().GetString("search")
			pending, _ := cmd.Flags().GetBool("pending")
			f := tasks.Filter{Search: search}
			if pending {
				no := false
				f.Completed = &no
			}
			return withApp(*configPath, func(a *app.App) error {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tDONE\tPRIORITY\tCATEGORY\tTITLE")
				for _, t := range a.Tasks.Filtered(f) {
					done := " "
					if t.Completed {
						done = "x"
					}
					fmt.Fprintf(w, "%s\t[%s]\t%s\t%s\t%s\n", t.ID, done, t.Priority, t.Category, t.Title)
				}
				_ = w.Flush()
				st := a.Tasks.Stats()
				fmt.Printf("\n%d tasks, %d pending, %d overdue\n", st.Total, st.Pending, st.Overdue)
				return nil
			})
		},
	}
	listCmd.Flags().String("search", "", "match title, description or tags")
	listCmd.Flags().Bool("pending", false, "only show open tasks")

	addCmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, _ := cmd.Flags().GetString("priority")
			category, _ := cmd.Flags().GetString("category")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			due, _ := cmd.Flags().GetDuration("due")
			in := tasks.CreateInput{
				Title:    strings.Join(args, " "),
				Priority: tasks.Priority(priority),
				Category: category,
				Tags:     tags,
			}
			if due > 0 {
				at := time.Now().Add(due)
				in.DueDate = &at
			}
			return withApp(*configPath, func(a *app.App) error {
				t, err := a.Tasks.Create(in)
				if err != nil {
					return err
				}
				fmt.Printf("added %s\n", t.ID)
				return nil
			})
		},
	}
	addCmd.Flags().String("priority", "", "low, medium or high")
	addCmd.Flags().String("category", "", "task category")
	addCmd.Flags().StringSlice("tag", nil, "tag (repeatable)")
	addCmd.Flags().Duration("due", 0, "due in this long, e.g. 48h")

	doneCmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task's completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app.App) error {
				if !a.Tasks.Toggle(args[0]) {
					return tasks.ErrNotFound
				}
				return nil
			})
		},
	}

	tasksCmd.AddCommand(listCmd, addCmd, doneCmd)
	return tasksCmd
}

func newTogglesCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [name [on|off]]",
		Short: "Show or change UI toggles",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app.App) error {
				if len(args) == 0 {
					for _, n := range toggles.Names() {
						fmt.Printf("%-20s %v\n", n, a.Toggles.Get(n))
					}
					return nil
				}
				name, ok := toggles.ParseName(args[0])
				if !ok {
					return errors.New("unknown toggle " + strconv.Quote(args[0]))
				}
				var v bool
				switch {
				case len(args) == 1:
					v = a.Toggles.Toggle(name)
				case args[1] == "on":
					v = true
					a.Toggles.Set(name, v)
				case args[1] == "off":
					a.Toggles.Set(name, v)
				default:
					return fmt.Errorf("toggle value must be on or off, got %q", args[1])
				}
				fmt.Printf("%s %v\n", name, v)
				return nil
			})
		},
	}
}
