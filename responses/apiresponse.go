package responses

import "github.com/mapleleafu/typerace/protocol"

// CommandError is an error reported back to the sender of a datagram.
type CommandError interface {
	Error() string
	Verb() protocol.Verb
}

// JoinError rejects a USER_JOIN; the client stays unregistered.
type JoinError struct {
	Msg string
}

func (e JoinError) Error() string {
	return e.Msg
}

func (JoinError) Verb() protocol.Verb {
	return protocol.UserJoinErr
}

type BadRequestError struct {
	Msg string
}

func (e BadRequestError) Error() string {
	return e.Msg
}

func (BadRequestError) Verb() protocol.Verb {
	return protocol.Error
}

var (
	ErrUnknownCommand  = BadRequestError{Msg: "Unknown command"}
	ErrIllegalArgCount = BadRequestError{Msg: "Illegal number of arguments"}
	ErrInvalidProgress = BadRequestError{Msg: "Invalid progress"}
)

// APIError interface for errors returned by the HTTP status API.
type APIError interface {
	Error() string
	StatusCode() int
}

type NotFoundError struct {
	Msg string
}

func (e NotFoundError) Error() string {
	return e.Msg
}

func (NotFoundError) StatusCode() int {
	return 404
}

type ServiceUnavailableError struct {
	Msg string
}

func (e ServiceUnavailableError) Error() string {
	return e.Msg
}

func (ServiceUnavailableError) StatusCode() int {
	return 503
}

type InternalServerError struct {
	Msg string
}

func (e InternalServerError) Error() string {
	return e.Msg
}

func (InternalServerError) StatusCode() int {
	return 500
}

// BadRequestAPIError is the HTTP flavour of a malformed request.
type BadRequestAPIError struct {
	Msg string
}

func (e BadRequestAPIError) Error() string {
	return e.Msg
}

func (BadRequestAPIError) StatusCode() int {
	return 400
}
