package pubsub

import "errors"

var (
	// ErrSessionClosed is returned when attaching or subscribing a dropped session.
	ErrSessionClosed = errors.New("pubsub: session closed")

	// ErrSessionExists is returned by Attach when the client id is taken.
	ErrSessionExists = errors.New("pubsub: session already attached")

	// ErrEmptyChannel is returned for a subscribe or unsubscribe without a channel name.
	ErrEmptyChannel = errors.New("pubsub: empty channel name")
)
