package identity

import (
	"errors"
	"fmt"
)

const (
	CodeUserNotFound          = "auth/user-not-found"
	CodeWrongPassword         = "auth/wrong-password"
	CodeEmailAlreadyInUse     = "auth/email-already-in-use"
	CodeWeakPassword          = "auth/weak-password"
	CodeInvalidEmail          = "auth/invalid-email"
	CodeUserDisabled          = "auth/user-disabled"
	CodeTooManyRequests       = "auth/too-many-requests"
	CodeNetworkRequestFailed  = "auth/network-request-failed"
	CodeInvalidCredential     = "auth/invalid-credential"
	CodePopupClosedByUser     = "auth/popup-closed-by-user"
	CodePopupBlocked          = "auth/popup-blocked"
	CodeCancelledPopupRequest = "auth/cancelled-popup-request"
	CodeUserTokenExpired      = "auth/user-token-expired"
	CodeInvalidIDToken        = "auth/invalid-id-token"
	CodeOperationNotAllowed   = "auth/operation-not-allowed"
	CodeInternalError         = "auth/internal-error"
)

const defaultMessage = "Ein Fehler ist aufgetreten. Bitte versuchen Sie es erneut."

var messages = map[string]string{
	CodeUserNotFound:          "Benutzer nicht gefunden.",
	CodeWrongPassword:         "Falsches Passwort.",
	CodeEmailAlreadyInUse:     "Diese E-Mail-Adresse wird bereits verwendet.",
	CodeWeakPassword:          "Das Passwort ist zu schwach.",
	CodeInvalidEmail:          "Ungültige E-Mail-Adresse.",
	CodeUserDisabled:          "Dieses Konto wurde deaktiviert.",
	CodeTooManyRequests:       "Zu viele Anfragen. Bitte versuchen Sie es später erneut.",
	CodeNetworkRequestFailed:  "Netzwerkfehler. Bitte überprüfen Sie Ihre Internetverbindung.",
	CodeInvalidCredential:     "Ungültige Anmeldedaten.",
	CodePopupClosedByUser:     "Das Popup-Fenster wurde geschlossen.",
	CodePopupBlocked:          "Popup wurde blockiert. Bitte erlauben Sie Popups für diese Seite.",
	CodeCancelledPopupRequest: "Login wurde abgebrochen.",
	CodeUserTokenExpired:      "Ihre Sitzung ist abgelaufen. Bitte melden Sie sich erneut an.",
}

// MessageFor returns the user-facing German message for an auth code.
// Unknown codes get the generic message.
func MessageFor(code string) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return defaultMessage
}

// AuthError is the only error shape the UI ever sees from the identity layer.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func NewAuthError(code string, cause error) *AuthError {
	return &AuthError{Code: code, Message: MessageFor(code), Err: cause}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *AuthError) Unwrap() error { return e.Err }

// HasCode reports whether err is an *AuthError with the given code.
func HasCode(err error, code string) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Code == code
}

// ToAuthError returns err as an *AuthError, wrapping anything else as an
// internal error so raw causes never reach the UI.
func ToAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return NewAuthError(CodeInternalError, err)
}
