package events

import "errors"

var (
	ErrUnknownEvent  = errors.New("unknown event")
	ErrUnknownAction = errors.New("unknown host action")
	ErrMissingObject = errors.New("host action is missing an object")
)
