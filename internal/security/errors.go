package security

import "errors"

// Error taxonomy for the companion core. API and CLI layers map these with
// errors.Is; messages are safe to show to users.
var (
	ErrUnauthenticated     = errors.New("session is not authenticated or has expired")
	ErrRateLimited         = errors.New("rate limit exceeded, please try again later")
	ErrPermissionDenied    = errors.New("operation not permitted by privacy settings")
	ErrValidationFailed    = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrCryptoFailure       = errors.New("message decryption failed")
)
