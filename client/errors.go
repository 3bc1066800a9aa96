package client

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	rderrors "github.com/redoraai/redora-cli/pkg/errors"
)

// mapRPCError converts a gRPC status error into an error wrapping the
// matching pkg/errors sentinel. The server message is kept in the text.
func mapRPCError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var sentinel error
	switch st.Code() {
	case codes.OK:
		return nil
	case codes.NotFound:
		sentinel = rderrors.ErrNotFound
	case codes.InvalidArgument, codes.OutOfRange:
		sentinel = rderrors.ErrValidation
	case codes.FailedPrecondition:
		sentinel = rderrors.ErrInvalidState
	case codes.AlreadyExists, codes.Aborted:
		sentinel = rderrors.ErrConflict
	case codes.Unauthenticated:
		sentinel = rderrors.ErrUnauthorized
	case codes.PermissionDenied:
		sentinel = rderrors.ErrForbidden
	case codes.Unavailable, codes.ResourceExhausted:
		sentinel = rderrors.ErrUnavailable
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("%s: %w", st.Message(), context.Canceled)
	default:
		return fmt.Errorf("rpc error (%s): %s", st.Code(), st.Message())
	}
	return fmt.Errorf("%s: %w", st.Message(), sentinel)
}
