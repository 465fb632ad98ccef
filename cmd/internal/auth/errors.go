package auth

import "errors"

var (
	// ErrSecretMissing indicates the shared signing secret is not configured.
	ErrSecretMissing = errors.New("auth: signing secret missing")
	// ErrSecretTooShort indicates the configured secret is below the minimum length.
	ErrSecretTooShort = errors.New("auth: signing secret too short")

	// ErrCredentialMissing indicates no bearer credential was supplied.
	ErrCredentialMissing = errors.New("auth: credential missing")
	// ErrCredentialInvalid indicates a malformed credential or a bad signature.
	ErrCredentialInvalid = errors.New("auth: credential invalid")
	// ErrCredentialExpired indicates a well-formed but expired credential.
	ErrCredentialExpired = errors.New("auth: credential expired")
	// ErrUnknownRole indicates the credential carries a role outside {user, admin}.
	ErrUnknownRole = errors.New("auth: unknown role")
)
