package chat

import "errors"

var (
	// ErrAlreadyRegistered means a connection tried to identify twice.
	ErrAlreadyRegistered = errors.New("connection already registered")

	// ErrUnknownConnection means an operation referenced a connection that is
	// not in the registry. Direct actions (send_message, typing, room ops)
	// reject with this; fan-out delivery to a vanished connection is a no-op
	// instead.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrNotFound means an unregister targeted a connection that was never
	// registered or is already gone.
	ErrNotFound = errors.New("connection not found")
)
