package api

import "errors"

var (
	// ErrUnauthenticated means no usable credential was available or the
	// backend rejected it. Callers should send the user back to login.
	ErrUnauthenticated = errors.New("api: unauthenticated")
	// ErrNetwork covers transport failures and unexpected statuses. Retryable by the user.
	ErrNetwork = errors.New("api: network failure")
	// ErrDecode means the response did not match the expected shape.
	ErrDecode = errors.New("api: decode failure")
	// ErrNotFound is returned by deletes for ids unknown to the backend.
	ErrNotFound = errors.New("api: not found")
)

// Labels returned by ErrorKind.
const (
	KindUnauthenticated = "unauthenticated"
	KindNotFound        = "not_found"
	KindDecode          = "decode"
	KindNetwork         = "network"
	KindUnexpected      = "unexpected"
)

// ErrorKind maps an error to a stable logging label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	}
	return KindUnexpected
}
