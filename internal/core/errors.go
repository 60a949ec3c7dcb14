package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeRoomNotFound   = "room_not_found"
	ErrCodeNotInRoom      = "not_in_room"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeRateLimited    = "rate_limited"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotInRoom    = errors.New("not in room")
)

// CoreError wraps a code and human-readable message. It is always reported
// privately to the connection that caused it.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// Is matches the sentinel error for the code.
func (e *CoreError) Is(target error) bool {
	switch e.Code {
	case ErrCodeBadRequest:
		return target == ErrBadRequest
	case ErrCodeRoomNotFound:
		return target == ErrRoomNotFound
	case ErrCodeNotInRoom:
		return target == ErrNotInRoom
	}
	return false
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// validationError reports a missing or invalid required field.
func validationError(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg)
}

// ErrHubStopped is returned when registering with a hub that is not running.
var ErrHubStopped = errors.New("hub stopped")
