package mapping

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/eslsoft/spacedrep/internal/entity"
)

// ToStatus converts a domain error into a gRPC status error. Errors that already
// carry a status are returned unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(CodeOf(err), err.Error())
}

// CodeOf classifies a domain error.
func CodeOf(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case entity.IsValidation(err):
		return codes.InvalidArgument
	case entity.IsNotFound(err), errors.Is(err, entity.ErrStateNotFound):
		return codes.NotFound
	case errors.Is(err, entity.ErrDuplicateState):
		return codes.AlreadyExists
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded), entity.IsStorage(err):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
