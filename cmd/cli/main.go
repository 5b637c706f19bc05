package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rubberband-os/rubberband/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Signup        commands.SignupCmd        `cmd:"" help:"Create an account and organization"`
		Login         commands.LoginCmd         `cmd:"" help:"Sign in and store the session"`
		Logout        commands.LogoutCmd        `cmd:"" help:"End the current session"`
		Whoami        commands.WhoamiCmd        `cmd:"" help:"Show the signed-in account"`
		CreateOrg     commands.CreateOrgCmd     `cmd:"" name:"create-org" help:"Finish a signup that stopped before the organization was created"`
		Onboarding    commands.OnboardingCmd    `cmd:"" help:"Mark organization onboarding as complete"`
		Invite        commands.InviteCmd        `cmd:"" help:"Invite a member to an organization"`
		Invitations   commands.InvitationsCmd   `cmd:"" help:"List pending invitations"`
		AcceptInvite  commands.AcceptInviteCmd  `cmd:"" name:"accept-invite" help:"Join an organization with an invitation token"`
		DeleteAccount commands.DeleteAccountCmd `cmd:"" name:"delete-account" help:"Permanently delete your account"`
		Profiles      commands.ProfilesCmd      `cmd:"" help:"Manage stored credentials"`

		Server      string `help:"Account server URL (defaults to the profile's server)." env:"RUBBERBAND_SERVER"`
		Profile     string `help:"Credentials profile to use." env:"RUBBERBAND_PROFILE"`
		Credentials string `help:"Path of the credentials file." env:"RUBBERBAND_CREDENTIALS"`
		Debug       bool   `help:"Enable debug mode."`
		Version     kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("rubberband"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(commands.NewGlobals(cli.Server, cli.Profile, cli.Credentials, cli.Debug, version))
	cmd.FatalIfErrorf(err)
}
