package daemon

import "errors"

// Failure kinds surfaced by Client. They are always wrapped, so match them
// with errors.Is.
var (
	// ErrConnect means no connection could be established or restored
	// within the configured attempt bound.
	ErrConnect = errors.New("daemon connection failed")

	// ErrTransport means an I/O error hit an exchange and the single
	// transparent retry failed as well.
	ErrTransport = errors.New("daemon transport failed")

	// ErrEmptyReply means the daemon answered with an empty line.
	ErrEmptyReply = errors.New("empty response from daemon")

	// ErrDecode means the reply did not have the shape the command expects.
	ErrDecode = errors.New("unexpected daemon response")

	// ErrBusy means the queue timeout elapsed before the connection was free.
	ErrBusy = errors.New("daemon connection busy")

	// ErrClosed means the client was shut down.
	ErrClosed = errors.New("daemon client closed")

	// ErrInvalidCommand means a command argument is outside its domain.
	ErrInvalidCommand = errors.New("invalid daemon command")
)

// IsUnavailable reports failures caused by the daemon being unreachable or
// saturated, as opposed to a reply it sent.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrConnect) ||
		errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrClosed)
}
