package interfaces

// IdentityVerifier resolves a bearer credential to a verified user
// identity string. Token issuance is owned by the external identity
// service; the hub only verifies.
type IdentityVerifier interface {
	// Verify returns the user id for a valid credential, or one of
	// ErrMissingCredential, ErrInvalidCredential, ErrExpiredCredential.
	Verify(credential string) (string, error)
}
