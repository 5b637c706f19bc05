package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
)

// ProfilesCmd manages stored credentials.
type ProfilesCmd struct {
	List       ProfilesListCmd       `cmd:"" default:"1" help:"List profiles"`
	SetDefault ProfilesSetDefaultCmd `cmd:"" name:"set-default" help:"Set the default profile"`
	Delete     ProfilesDeleteCmd     `cmd:"" help:"Forget a profile"`
}

type ProfilesListCmd struct{}

func (c *ProfilesListCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.store()
	if err != nil {
		return err
	}

	profiles, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	if len(profiles) == 0 {
		globals.printf("No profiles found.\n\nTo sign in:\n  rubberband login --email you@example.com\n")
		return nil
	}

	defaultName, _ := store.DefaultName()

	w := tabwriter.NewWriter(globals.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMAIL\tSERVER\tSTATUS\tDEFAULT")
	for _, p := range profiles {
		status := "signed out"
		if p.SignedIn() {
			status = "signed in"
		}
		isDefault := ""
		if p.Name == defaultName {
			isDefault = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Email, p.ServerURL, status, isDefault)
	}
	return w.Flush()
}

type ProfilesSetDefaultCmd struct {
	Name string `arg:"" help:"Profile name"`
}

func (c *ProfilesSetDefaultCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.store()
	if err != nil {
		return err
	}
	if err := store.SetDefault(c.Name); err != nil {
		return err
	}
	globals.printf("Default profile set to %s\n", c.Name)
	return nil
}

type ProfilesDeleteCmd struct {
	Name string `arg:"" help:"Profile name"`
}

func (c *ProfilesDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.store()
	if err != nil {
		return err
	}
	if err := store.Delete(c.Name); err != nil {
		return err
	}
	globals.printf("Profile %s deleted\n", c.Name)
	return nil
}
