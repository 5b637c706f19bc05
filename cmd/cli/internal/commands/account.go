package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"connectrpc.com/connect"
	"github.com/rubberband-os/rubberband/cmd/cli/internal/credentials"
	"github.com/rubberband-os/rubberband/internal/api"
	"gopkg.in/yaml.v3"
)

// OrgFlags describe an organization on the command line.
type OrgFlags struct {
	Org             string `help:"Organization name" name:"org"`
	Country         string `help:"Two letter country code"`
	LogoURL         string `help:"Organization logo URL" name:"logo-url"`
	WorkspaceHandle string `help:"Workspace handle" name:"workspace-handle"`
	ReferralSource  string `help:"How you heard about us" name:"referral-source"`
}

// apply overrides the details with every flag that is set.
func (f OrgFlags) apply(details *api.OrganizationDetails) {
	for _, set := range []struct {
		flag string
		dst  *string
	}{
		{f.Org, &details.Name},
		{f.Country, &details.Country},
		{f.LogoURL, &details.LogoURL},
		{f.WorkspaceHandle, &details.WorkspaceHandle},
		{f.ReferralSource, &details.ReferralSource},
	} {
		if set.flag != "" {
			*set.dst = set.flag
		}
	}
}

// signupFile is the YAML document accepted by signup --file.
type signupFile struct {
	FullName     string                  `yaml:"full_name"`
	Organization api.OrganizationDetails `yaml:"organization"`
}

func loadSignupFile(path string) (*signupFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signup file: %w", err)
	}

	var file signupFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse signup file: %w", err)
	}
	return &file, nil
}

type SignupCmd struct {
	Email    string `help:"Email address" required:""`
	Password string `help:"Password (at least 8 characters)" env:"RUBBERBAND_PASSWORD" required:""`
	FullName string `help:"Your full name" name:"full-name"`
	File     string `help:"YAML file with full_name and organization details" type:"existingfile"`
	OrgFlags `embed:""`
}

func (c *SignupCmd) Run(ctx context.Context, globals *Globals) error {
	req := &api.SignupRequest{
		Email:    c.Email,
		Password: c.Password,
	}

	if c.File != "" {
		file, err := loadSignupFile(c.File)
		if err != nil {
			return err
		}
		req.FullName = file.FullName
		req.Organization = file.Organization
	}
	if c.FullName != "" {
		req.FullName = c.FullName
	}
	c.OrgFlags.apply(&req.Organization)

	store, err := globals.store()
	if err != nil {
		return err
	}
	clients := globals.publicClients(store)

	resp, err := clients.Account.Signup(ctx, connect.NewRequest(req))
	if err != nil {
		return describeError(err)
	}

	globals.printf("Created organization %s (%s)\n", req.Organization.Name, resp.Msg.OrgID)
	printWarnings(globals, resp.Msg.Warnings)

	return login(ctx, globals, store, c.Email, c.Password)
}

type LoginCmd struct {
	Email    string `help:"Email address" required:""`
	Password string `help:"Password" env:"RUBBERBAND_PASSWORD" required:""`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := globals.store()
	if err != nil {
		return err
	}
	return login(ctx, globals, store, c.Email, c.Password)
}

func login(ctx context.Context, globals *Globals, store *credentials.Store, email, password string) error {
	clients := globals.publicClients(store)

	resp, err := clients.Account.Login(ctx, connect.NewRequest(&api.LoginRequest{
		Email:    email,
		Password: password,
	}))
	if err != nil {
		return describeError(err)
	}

	name := globals.profileName(store)
	if err := store.Save(credentials.Profile{
		Name:        name,
		ServerURL:   clients.ServerURL,
		Email:       resp.Msg.Email,
		IdentityID:  resp.Msg.IdentityID,
		AccessToken: resp.Msg.AccessToken,
	}); err != nil {
		return err
	}

	globals.printf("Signed in as %s (profile %s)\n", resp.Msg.Email, name)
	if resp.Msg.NeedsOrganization {
		globals.printf("\nYour signup did not finish creating an organization. Complete it with:\n")
		globals.printf("  rubberband create-org --org <name>\n")
	}
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	clients, profile, err := globals.sessionClients()
	if err != nil {
		return err
	}

	if _, err := clients.Account.Logout(ctx, connect.NewRequest(&api.LogoutRequest{})); err != nil &&
		connect.CodeOf(err) != connect.CodeUnauthenticated {
		return describeError(err)
	}

	store, err := globals.store()
	if err != nil {
		return err
	}
	if err := store.ClearToken(profile.Name); err != nil {
		return err
	}

	globals.printf("Signed out of profile %s\n", profile.Name)
	return nil
}

type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	clients, _, err := globals.sessionClients()
	if err != nil {
		return err
	}

	resp, err := clients.Account.GetAccount(ctx, connect.NewRequest(&api.GetAccountRequest{}))
	if err != nil {
		return describeError(err)
	}
	account := resp.Msg

	globals.printf("Email:       %s\n", account.Email)
	if account.FullName != "" {
		globals.printf("Name:        %s\n", account.FullName)
	}
	globals.printf("Identity ID: %s\n", account.IdentityID)
	globals.printf("Created:     %s\n\n", account.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(account.Memberships) == 0 {
		globals.printf("No organizations. Run: rubberband create-org --org <name>\n")
		return nil
	}

	w := tabwriter.NewWriter(globals.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORG ID\tNAME\tROLE\tMEMBERS\tONBOARDED")
	for _, m := range account.Memberships {
		onboarded := "no"
		if m.Settings != nil && m.Settings.HasCompletedOnboarding {
			onboarded = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", m.OrgID, m.OrgName, m.Role, m.MemberCount, onboarded)
	}
	return w.Flush()
}

type CreateOrgCmd struct {
	OrgFlags `embed:""`
}

func (c *CreateOrgCmd) Run(ctx context.Context, globals *Globals) error {
	clients, _, err := globals.sessionClients()
	if err != nil {
		return err
	}

	var details api.OrganizationDetails
	c.OrgFlags.apply(&details)

	resp, err := clients.Account.CreateOrganization(ctx, connect.NewRequest(&api.CreateOrganizationRequest{
		Organization: details,
	}))
	if err != nil {
		return describeError(err)
	}

	globals.printf("Created organization %s (%s)\n", details.Name, resp.Msg.OrgID)
	printWarnings(globals, resp.Msg.Warnings)
	return nil
}

type OnboardingCmd struct {
	OrgID   string `help:"Organization ID (defaults to your only organization)" name:"org-id"`
	UseCase string `help:"What you plan to use Rubberband for" name:"use-case"`
}

func (c *OnboardingCmd) Run(ctx context.Context, globals *Globals) error {
	clients, _, err := globals.sessionClients()
	if err != nil {
		return err
	}

	orgID, err := resolveOrgID(ctx, clients, c.OrgID)
	if err != nil {
		return err
	}

	if _, err := clients.Account.CompleteOnboarding(ctx, connect.NewRequest(&api.CompleteOnboardingRequest{
		OrgID:   orgID,
		UseCase: c.UseCase,
	})); err != nil {
		return describeError(err)
	}

	globals.printf("Onboarding complete for %s\n", orgID)
	return nil
}
