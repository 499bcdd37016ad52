package rpc

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError is a failure the remote handler itself reported for this call.
type AppError struct {
	Code codes.Code
	Msg  string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("remote application error: %s: %s", e.Code, e.Msg)
}

// Error is an RPC- or transport-layer failure that did not originate in the
// remote application logic.
type Error struct {
	Code codes.Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error: %s: %s", e.Code, e.Msg)
}

// transportCodes are the status codes the gRPC runtime produces on its own
// for connection, framing and deadline failures. Every other status on a
// stream was set by the remote handler.
var transportCodes = map[codes.Code]bool{
	codes.Canceled:          true,
	codes.DeadlineExceeded:  true,
	codes.ResourceExhausted: true,
	codes.Aborted:           true,
	codes.Unimplemented:     true,
	codes.Internal:          true,
	codes.Unavailable:       true,
}

// classify narrows a call failure into AppError or Error. Errors that carry
// no gRPC status pass through unchanged.
func classify(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if transportCodes[st.Code()] {
		return &Error{Code: st.Code(), Msg: st.Message()}
	}
	return &AppError{Code: st.Code(), Msg: st.Message()}
}
