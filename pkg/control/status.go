package control

import (
	"github.com/core-tools/hsu-supervisor/pkg/errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.IsNotFoundError(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.IsValidationError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.IsConflictError(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.IsCancelledError(err):
		return status.Error(codes.Canceled, err.Error())
	case errors.IsTimeoutError(err):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func fromStatusError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.NewInternalError("control call failed", err)
	}
	switch st.Code() {
	case codes.NotFound:
		return errors.NewNotFoundError(st.Message(), nil)
	case codes.InvalidArgument:
		return errors.NewValidationError(st.Message(), nil)
	case codes.FailedPrecondition:
		return errors.NewConflictError(st.Message(), nil)
	case codes.Canceled:
		return errors.NewCancelledError(st.Message(), nil)
	case codes.DeadlineExceeded:
		return errors.NewTimeoutError(st.Message(), nil)
	case codes.Unavailable:
		return errors.NewIOError("supervisor unavailable", err)
	default:
		return errors.NewInternalError(st.Message(), nil)
	}
}
