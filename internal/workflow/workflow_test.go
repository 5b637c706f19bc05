package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeOf(t *testing.T) {
	cause := errors.New("duplicate key")
	err := fmt.Errorf("signup: %w", NewError(AccountCreationFailed, "create_identity", "email taken", cause))

	require.Equal(t, AccountCreationFailed, TypeOf(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, ErrorType(""), TypeOf(cause))
	require.Contains(t, err.Error(), "email taken")
}

func TestErrorType_Fatal(t *testing.T) {
	require.True(t, AccountCreationFailed.Fatal())
	require.True(t, IdentityDeletionFailed.Fatal())
	require.False(t, ProfileVerificationFailed.Fatal())
	require.False(t, SettingsInitFailed.Fatal())
}

func TestCompensations_Unwind(t *testing.T) {
	var undone []string
	var c Compensations

	c.Retain("create_identity", "identity is reconciled on next login")
	c.Push(Compensation{Step: "a", Undo: func(context.Context) error {
		undone = append(undone, "a")
		return nil
	}})
	c.Push(Compensation{Step: "b", Undo: func(context.Context) error {
		undone = append(undone, "b")
		return errors.New("b failed")
	}})
	require.Equal(t, 3, c.Len())

	retained, errs := c.Unwind(context.Background())
	require.Equal(t, []string{"b", "a"}, undone)
	require.Len(t, errs, 1)
	require.Len(t, retained, 1)
	require.Equal(t, "create_identity", retained[0].Step)
	require.Zero(t, c.Len())
}
