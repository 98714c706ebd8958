package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/five82/recipunto/internal/app"
	"github.com/five82/recipunto/internal/form"
)

func newProfileCommand(configPath *string) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the local profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app.App) error {
				printUserDraft(a.UserForm.Data())
				return nil
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change profile fields",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app.App) error {
				fs := cmd.Flags()
				var setters []form.Setter[form.UserDraft]
				if fs.Changed("name") {
					v, _ := fs.GetString("name")
					setters = append(setters, form.UserFullName.Set(v))
				}
				if fs.Changed("email") {
					v, _ := fs.GetString("email")
					setters = append(setters, form.UserEmail.Set(v))
				}
				if fs.Changed("phone") {
					v, _ := fs.GetString("phone")
					setters = append(setters, form.UserPhone.Set(v))
				}
				prefs := a.UserForm.Data().Preferences
				if fs.Changed("theme") || fs.Changed("language") || fs.Changed("notifications") {
					if fs.Changed("theme") {
						prefs.Theme, _ = fs.GetString("theme")
					}
					if fs.Changed("language") {
						prefs.Language, _ = fs.GetString("language")
					}
					if fs.Changed("notifications") {
						prefs.Notifications, _ = fs.GetBool("notifications")
					}
					setters = append(setters, form.UserPrefs.Set(prefs))
				}
				if len(setters) == 0 {
					return fmt.Errorf("nothing to change, pass at least one flag")
				}
				a.UserForm.UpdateFields(setters...)
				if err := a.UserForm.Save(cmd.Context()); err != nil {
					return err
				}
				printUserDraft(a.UserForm.Data())
				return nil
			})
		},
	}
	setCmd.Flags().String("name", "", "full name")
	setCmd.Flags().String("email", "", "contact email")
	setCmd.Flags().String("phone", "", "phone number")
	setCmd.Flags().String("theme", "", "light, dark or system")
	setCmd.Flags().String("language", "", "es or en")
	setCmd.Flags().Bool("notifications", true, "receive notifications")

	profileCmd.AddCommand(setCmd, &cobra.Command{
		Use:   "reset",
		Short: "Restore the default profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app.App) error {
				a.UserForm.Clear()
				printUserDraft(a.UserForm.Data())
				return nil
			})
		},
	})
	return profileCmd
}

func printUserDraft(d form.UserDraft) {
	fmt.Printf("name:          %s\n", orDash(d.FullName))
	fmt.Printf("email:         %s\n", orDash(d.Email))
	fmt.Printf("phone:         %s\n", orDash(d.Phone))
	fmt.Printf("theme:         %s\n", d.Preferences.Theme)
	fmt.Printf("language:      %s\n", d.Preferences.Language)
	fmt.Printf("notifications: %v\n", d.Preferences.Notifications)
}

// printProfile adds the backend's view of the signed-in account.
func printProfile(ctx context.Context, a *app.App) {
	raw, err := a.CurrentUser(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return
	}
	var u struct {
		Role        string `json:"role"`
		LastSignIn  string `json:"last_sign_in_at"`
		ConfirmedAt string `json:"email_confirmed_at"`
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		fmt.Fprintf(os.Stderr, "warning: unreadable profile: %v\n", err)
		return
	}
	if u.Role != "" {
		fmt.Printf("role:      %s\n", u.Role)
	}
	if u.LastSignIn != "" {
		fmt.Printf("last in:   %s\n", u.LastSignIn)
	}
	if u.ConfirmedAt == "" {
		fmt.Println("email:     not confirmed")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
