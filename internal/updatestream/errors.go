package updatestream

import (
	"errors"

	"github.com/sirupsen/logrus"

	"updatestream-cdc/internal/rpc"
)

// ErrInvalidState is returned by StreamNext when no stream is in progress.
var ErrInvalidState = errors.New("update stream: no stream in progress")

// ErrBadReply is returned when a stream reply violates the wire protocol,
// e.g. a required field is missing or mistyped.
var ErrBadReply = errors.New("update stream: malformed reply")

// ApplicationError means the remote service itself reported a logical
// failure for this stream, such as an invalid starting position.
type ApplicationError struct {
	Err error
}

func (e *ApplicationError) Error() string {
	return "update stream: application error: " + e.Err.Error()
}

func (e *ApplicationError) Unwrap() error { return e.Err }

// OperationalError means the RPC layer failed without the remote application
// logic being involved, such as a dropped connection.
type OperationalError struct {
	Err error
}

func (e *OperationalError) Error() string {
	return "update stream: operational error: " + e.Err.Error()
}

func (e *OperationalError) Unwrap() error { return e.Err }

// classifyStreamError narrows the two known transport error kinds into the
// client taxonomy. Anything else is logged and returned unchanged; this
// layer does not swallow or reclassify failures it does not recognize.
func classifyStreamError(logger *logrus.Logger, err error) error {
	var appErr *rpc.AppError
	if errors.As(err, &appErr) {
		return &ApplicationError{Err: err}
	}
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return &OperationalError{Err: err}
	}
	logger.Errorf("update stream: low-level rpc error: %v", err)
	return err
}
