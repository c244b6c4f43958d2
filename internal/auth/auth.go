// Package auth is the narrow seam to the external identity provider. The
// engine only ever needs the authenticated user's id.
package auth

// Provider reports the currently authenticated user.
type Provider interface {
	// CurrentUserID returns the user id, or false when nobody is signed in.
	CurrentUserID() (string, bool)
}

// Static is a Provider fixed at construction, fed from configuration. Real
// deployments substitute an implementation backed by their identity service.
type Static struct {
	UserID string
}

func (s Static) CurrentUserID() (string, bool) {
	return s.UserID, s.UserID != ""
}
