package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/rubberband-os/rubberband/internal/api"
)

const deleteAccountPhrase = "delete my account"

// DeleteAccountCmd deletes the signed in account through the delete-user-account function.
type DeleteAccountCmd struct {
	Confirm string `help:"Confirmation phrase, skips the prompt"`
}

func (c *DeleteAccountCmd) Run(ctx context.Context, globals *Globals) error {
	clients, profile, err := globals.sessionClients()
	if err != nil {
		return err
	}

	account, err := clients.Account.GetAccount(ctx, connect.NewRequest(&api.GetAccountRequest{}))
	if err != nil {
		return describeError(err)
	}

	phrase := confirmationPhrase(account.Msg.Memberships)
	for _, m := range account.Msg.Memberships {
		if m.LastMember() {
			globals.printf("You are the last member of %s. It will be deleted with all of its data.\n", m.OrgName)
		}
	}

	typed := c.Confirm
	if typed == "" {
		globals.printf("Type %q to confirm: ", phrase)
		line, err := bufio.NewReader(globals.in).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		typed = line
	}
	if strings.TrimSpace(typed) != phrase {
		return errors.New("confirmation did not match, nothing was deleted")
	}

	resp, err := callDeleteFunction(ctx, clients.HTTP, clients.ServerURL, profile.AccessToken)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s (%s)", resp.Message, resp.ErrorType)
	}

	store, err := globals.store()
	if err != nil {
		return err
	}
	if err := store.ClearToken(profile.Name); err != nil {
		return err
	}

	globals.printf("%s\n", resp.Message)
	for _, orgID := range resp.OrganizationsDeleted {
		globals.printf("Deleted organization %s\n", orgID)
	}
	return nil
}

// confirmationPhrase is the text the user types before deletion. Last members
// name the first organization that goes away with them.
func confirmationPhrase(memberships []api.Membership) string {
	for _, m := range memberships {
		if m.LastMember() {
			return "delete " + m.OrgName
		}
	}
	return deleteAccountPhrase
}

func callDeleteFunction(ctx context.Context, httpClient *http.Client, serverURL, token string) (*api.FunctionResponse, error) {
	url := strings.TrimSuffix(serverURL, "/") + api.DeleteUserAccountPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call delete-user-account: %w", err)
	}
	defer res.Body.Close()

	var body api.FunctionResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("unexpected response from delete-user-account (status %d): %w", res.StatusCode, err)
	}
	return &body, nil
}
