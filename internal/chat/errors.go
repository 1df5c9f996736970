package chat

import "errors"

// Error codes reported at the protocol boundary.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeNotAMember         = "NOT_A_MEMBER"
	CodeEmptyContent       = "EMPTY_CONTENT"
	CodeMessageTooLarge    = "MESSAGE_TOO_LARGE"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeBadFrame           = "BAD_FRAME"
)

var (
	// ErrUnauthenticated is fatal to the connection; the transport is
	// closed with no further processing.
	ErrUnauthenticated = errors.New("chat: unauthenticated")

	// ErrNotAMember is reported to the caller; the connection stays open.
	ErrNotAMember = errors.New("chat: not a room member")

	// ErrRoomNotFound is reported when the target room does not exist.
	// Rooms are provisioned externally; the core never creates them.
	ErrRoomNotFound = errors.New("chat: room not found")

	// ErrEmptyContent is reported when content is empty after trimming.
	ErrEmptyContent = errors.New("chat: empty content")

	// ErrMessageTooLarge is reported when content exceeds the configured limit.
	ErrMessageTooLarge = errors.New("chat: message too large")

	// ErrPersistenceFailure is reported when the history append fails or
	// times out. The message was not persisted and is never fanned out.
	ErrPersistenceFailure = errors.New("chat: persistence failure")
)

// CodeFor maps a core error to its protocol error code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrEmptyContent):
		return CodeEmptyContent
	case errors.Is(err, ErrMessageTooLarge):
		return CodeMessageTooLarge
	case errors.Is(err, ErrPersistenceFailure):
		return CodePersistenceFailure
	default:
		return CodeBadFrame
	}
}
