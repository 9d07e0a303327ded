package publisher

import (
	"errors"
	"fmt"

	"ghost-publish/internal/ghost"
)

// State is a step of a single publish.
type State string

const (
	StateIdle                  State = "Idle"
	StateValidatingCredentials State = "ValidatingCredentials"
	StateBuildingToken         State = "BuildingToken"
	StateExtractingMetadata    State = "ExtractingMetadata"
	StateCreate                State = "Create"
	StateFetchingExisting      State = "FetchingExisting"
	StateUpdate                State = "Update"
	StateTransmitting          State = "Transmitting"
	StateWritingBack           State = "WritingBack"
	StateReporting             State = "Reporting"
	StateDone                  State = "Done"
)

// Kind classifies how a publish ended.
type Kind string

const (
	KindSuccess            Kind = "Success"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindInvalidNote        Kind = "InvalidNote"
	KindApplicationError   Kind = "ApplicationError"
	KindTransportError     Kind = "TransportError"
)

// ErrUnexpectedResponse is set when Ghost answers with neither a post nor errors.
var ErrUnexpectedResponse = errors.New("ghost returned an unexpected response")

// APIError wraps the structured errors Ghost rejected a post with.
type APIError struct {
	Errors []ghost.APIError
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return "ghost rejected the post"
	}
	first := e.Errors[0]
	if first.Context != "" {
		return fmt.Sprintf("ghost rejected the post: %s: %s", first.Message, first.Context)
	}
	return fmt.Sprintf("ghost rejected the post: %s", first.Message)
}

// Outcome is the result of one Publish call.
type Outcome struct {
	Kind Kind
	// States lists every state the publish passed through, Idle to Done.
	States []State
	// Created is true when the post was created rather than updated.
	Created bool
	// PostID is the remote identifier, when one is known.
	PostID string
	// Sent is the payload transmitted to Ghost.
	Sent ghost.Post
	// Post is the post Ghost returned on success.
	Post *ghost.RemotePost
	// Err describes the failure for every kind except Success.
	Err error
	// WriteBackErr is set when the post was saved but the note's front
	// matter could not be updated.
	WriteBackErr error
}

// OK reports whether the post was saved.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}
