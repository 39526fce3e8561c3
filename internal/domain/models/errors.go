package models

import "errors"

var (
	// ErrNetworkUnavailable wraps failed fetches and non-2xx responses.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrChannelClosed is reported when the push transport drops.
	ErrChannelClosed = errors.New("push channel closed")
	// ErrUnknownEvent is returned for push messages with an unrecognised type.
	ErrUnknownEvent = errors.New("unknown push event type")
	// ErrMalformedEvent is returned for push messages that are not valid JSON
	// for their declared type.
	ErrMalformedEvent = errors.New("malformed push event")
)

var (
	// ErrInvalidUpdate is returned for webhook updates whose payload does
	// not fit their kind.
	ErrInvalidUpdate = errors.New("invalid feed update")
	// ErrUnknownBackend is returned when the ingestion backend is not
	// recognised.
	ErrUnknownBackend = errors.New("unknown ingestion backend")
)
