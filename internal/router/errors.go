package router

import "errors"

// Reasons a message is dropped. Handle logs these itself; callers only
// need them for counting or tests.
var (
	// ErrUndecodable is returned when the payload is not valid JSON.
	ErrUndecodable = errors.New("router: undecodable payload")

	// ErrMalformedTopic is returned when the topic is not namespace/user/device/suffix.
	ErrMalformedTopic = errors.New("router: malformed topic")

	// ErrUnknownIdentity is returned when no person matches the topic identity.
	ErrUnknownIdentity = errors.New("router: unknown identity")
)
