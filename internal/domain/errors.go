package domain

import "errors"

var (
	// ErrNoSourcesProvided indicates a generation request with no usable input channel
	ErrNoSourcesProvided = errors.New("no sources provided")
	// ErrUnparsableResponse indicates no JSON payload could be located in the model reply
	ErrUnparsableResponse = errors.New("unparsable model response")
	// ErrMalformedJSON indicates the located payload is not valid JSON
	ErrMalformedJSON = errors.New("malformed json in model response")
	// ErrUnexpectedShape indicates valid JSON that is neither a lesson nor an escalation
	ErrUnexpectedShape = errors.New("unexpected model response shape")
	// ErrSafetyBlocked indicates generation was blocked by the backend's safety filters
	ErrSafetyBlocked = errors.New("response blocked by safety filters")
	// ErrNothingToSubmit indicates a resubmission attempt with no attachments
	ErrNothingToSubmit = errors.New("nothing to submit")
	// ErrChatBackendError indicates a follow-up turn failed at the backend
	ErrChatBackendError = errors.New("chat backend error")
	// ErrMissingAPICredentials indicates no backend API key is configured
	ErrMissingAPICredentials = errors.New("missing api credentials")
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrRequestInFlight indicates an overlapping send on an exclusively owned key
	ErrRequestInFlight = errors.New("request already in flight")
)
