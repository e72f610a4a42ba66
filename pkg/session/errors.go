package session

import "errors"

var (
	// ErrNotConnected is returned by operations that need a completed handshake.
	ErrNotConnected = errors.New("session: not connected")
	// ErrNotAuthenticated is returned by SignMessage before a successful VerifyPIN.
	ErrNotAuthenticated = errors.New("session: PIN not verified")
	// ErrEmptyMessage is returned by SignMessage for an empty message.
	ErrEmptyMessage = errors.New("session: empty message")
	// ErrMessageTooLong is returned when the chunk counter would not fit in a byte.
	ErrMessageTooLong = errors.New("session: message needs too many chunks")
	// ErrInvalidOptions is returned by Options.Validate.
	ErrInvalidOptions = errors.New("session: invalid options")
)
