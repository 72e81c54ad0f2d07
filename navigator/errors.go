package navigator

import "errors"

var (
	// ErrNoSession is returned when the tab is not in a conversation view.
	ErrNoSession = errors.New("navigator: no active session")
	// ErrClosed is returned by calls on a session that has been torn down.
	ErrClosed = errors.New("navigator: session closed")
)
