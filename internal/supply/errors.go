package supply

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means no credential source could be resolved.
	ErrConfiguration = errors.New("missing configuration")
	// ErrAuth means the remote service rejected the credentials.
	ErrAuth = errors.New("authentication rejected")
	// ErrFetch is a read failure. Callers fall back to an empty table.
	ErrFetch = errors.New("fetch failed")
	// ErrWrite is a write-back failure. It is never retried.
	ErrWrite = errors.New("write failed")

	// ErrHeader means two header cells share a name, blank included.
	ErrHeader = errors.New("sheet header is not unique")

	ErrUnknownRow = errors.New("unknown row")
	ErrConflict   = errors.New("sheet changed since load")
	ErrForbidden  = errors.New("row not owned by vendor")
)

// UserError carries the message shown on screen next to the cause.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err with a user-facing message.
func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}

// UserMessage maps err to the text shown to the user.
func UserMessage(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.UserMessage
	}
	switch {
	case errors.Is(err, ErrHeader):
		return "The sheet has repeated column names; rename them before loading"
	case errors.Is(err, ErrConfiguration):
		return "Credentials not found: set GCP_SERVICE_ACCOUNT or provide secrets.json"
	case errors.Is(err, ErrAuth):
		return "Google Sheet login failed"
	case errors.Is(err, ErrFetch):
		return "Could not load data from Google Sheet"
	case errors.Is(err, ErrConflict):
		return "The sheet changed since it was loaded; reload before saving"
	case errors.Is(err, ErrWrite):
		return "Save failed; the sheet may be incomplete, check it before saving again"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnknownRow):
		return "Edit rejected: row is not available"
	default:
		return "Unexpected error"
	}
}
