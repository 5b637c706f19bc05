package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"connectrpc.com/connect"
	"github.com/rubberband-os/rubberband/internal/api"
)

type InviteCmd struct {
	Email string `arg:"" help:"Email address to invite"`
	Role  string `help:"Role to grant" default:"viewer" enum:"admin,manager,viewer"`
	OrgID string `help:"Organization ID (defaults to your only organization)" name:"org-id"`
}

func (c *InviteCmd) Run(ctx context.Context, globals *Globals) error {
	clients, _, err := globals.sessionClients()
	if err != nil {
		return err
	}

	orgID, err := resolveOrgID(ctx, clients, c.OrgID)
	if err != nil {
		return err
	}

	resp, err := clients.Account.InviteMember(ctx, connect.NewRequest(&api.InviteMemberRequest{
		OrgID: orgID,
		Email: c.Email,
		Role:  c.Role,
	}))
	if err != nil {
		return describeError(err)
	}

	inv := resp.Msg.Invitation
	globals.printf("Invited %s as %s, expires %s\n", inv.Email, inv.Role, inv.ExpiresAt.Format("2006-01-02 15:04"))
	globals.printf("They can join with:\n  rubberband accept-invite %s\n", inv.Token)
	return nil
}

type InvitationsCmd struct {
	OrgID string `help:"Organization ID (defaults to your only organization)" name:"org-id"`
}

func (c *InvitationsCmd) Run(ctx context.Context, globals *Globals) error {
	clients, _, err := globals.sessionClients()
	if err != nil {
		return err
	}

	orgID, err := resolveOrgID(ctx, clients, c.OrgID)
	if err != nil {
		return err
	}

	resp, err := clients.Account.ListInvitations(ctx, connect.NewRequest(&api.ListInvitationsRequest{OrgID: orgID}))
	if err != nil {
		return describeError(err)
	}

	if len(resp.Msg.Invitations) == 0 {
		globals.printf("No pending invitations.\n")
		return nil
	}

	w := tabwriter.NewWriter(globals.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tROLE\tEXPIRES")
	for _, inv := range resp.Msg.Invitations {
		fmt.Fprintf(w, "%s\t%s\t%s\n", inv.Email, inv.Role, inv.ExpiresAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

type AcceptInviteCmd struct {
	Token string `arg:"" help:"Invitation token from the invitation email"`
}

func (c *AcceptInviteCmd) Run(ctx context.Context, globals *Globals) error {
	clients, _, err := globals.sessionClients()
	if err != nil {
		return err
	}

	resp, err := clients.Account.AcceptInvitation(ctx, connect.NewRequest(&api.AcceptInvitationRequest{Token: c.Token}))
	if err != nil {
		return describeError(err)
	}

	globals.printf("Joined organization %s as %s\n", resp.Msg.OrgID, resp.Msg.Role)
	return nil
}
