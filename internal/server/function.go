package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/internal/api"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/deprovisioning"
	"github.com/rubberband-os/rubberband/internal/workflow"
)

// DeleteUserAccountHandler serves the delete-user-account function. The caller is
// identified by the bearer session token, privileged calls use the server's admin context.
func DeleteUserAccountHandler(sessions *auth.SessionManager, deprovisioner *deprovisioning.Deprovisioner) http.Handler {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeFunctionError(w, workflow.NewError(workflow.InvalidRequest, "", "method not allowed", nil), http.StatusMethodNotAllowed)
			return
		}

		session, ok := auth.UserSessionFromContext(r.Context())
		if !ok {
			writeFunctionError(w, workflow.NewError(workflow.Unauthorized, "", "not signed in", nil), 0)
			return
		}

		result, err := deprovisioner.Deprovision(r.Context(), session)
		if err != nil {
			var werr *workflow.Error
			if !errors.As(err, &werr) {
				werr = workflow.NewError(workflow.DataCleanupFailed, "", "account deletion failed", err)
			}
			writeFunctionError(w, werr, 0)
			return
		}

		writeJSON(w, http.StatusOK, &api.FunctionResponse{
			Success:              true,
			Message:              "Your account has been deleted",
			OrganizationsDeleted: uuidStrings(result.OrganizationsDeleted),
		})
	})

	return auth.SessionAuthMiddleware(sessions, func(w http.ResponseWriter, err error) {
		writeFunctionError(w, workflow.NewError(workflow.Unauthorized, "", "invalid or expired session", err), 0)
	})(handler)
}

// writeFunctionError writes the failure envelope. A zero status is derived from the error type.
func writeFunctionError(w http.ResponseWriter, werr *workflow.Error, status int) {
	if status == 0 {
		status = functionStatus(werr.Type)
	}

	// the cause stays in the logs, callers only see which step failed
	detail := werr.Message
	if werr.Step != "" {
		detail = "step " + werr.Step + " failed"
	}

	writeJSON(w, status, &api.FunctionResponse{
		Success:   false,
		Message:   werr.Message,
		Error:     detail,
		ErrorType: string(werr.Type),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to write function response")
	}
}
