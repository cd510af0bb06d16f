package slack

import (
	"errors"
	"fmt"
)

// ErrChannelCreateNotSupported is returned by backends that cannot provision
// channels (an incoming webhook is bound to a single channel).
var ErrChannelCreateNotSupported = errors.New("slack: channel creation is not supported by this backend")

// ErrChannelRequired is returned when a backend needs a channel in every call
// and the payload carries none.
var ErrChannelRequired = errors.New("slack: channel is required")

// APIError is a non-success response from slack.com. Params holds a
// token-redacted rendering of the request parameters.
type APIError struct {
	StatusCode int
	Body       string
	Params     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack.com - status:%d, body:%s, params:%s", e.StatusCode, e.Body, e.Params)
}

// ChannelNotFoundError reports a post to a channel the workspace does not
// know. It is the trigger for the dispatcher's auto-create recovery.
type ChannelNotFoundError struct {
	Channel string
	Cause   *APIError
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("slack: channel %q not found: %v", e.Channel, e.Cause)
}

func (e *ChannelNotFoundError) Unwrap() error { return e.Cause }

// NameTakenError reports a channels.create call that collided with an
// existing name.
type NameTakenError struct {
	Name  string
	Cause *APIError
}

func (e *NameTakenError) Error() string {
	return fmt.Sprintf("slack: channel name %q already taken: %v", e.Name, e.Cause)
}

func (e *NameTakenError) Unwrap() error { return e.Cause }
