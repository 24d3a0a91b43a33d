package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tutorbook/backend/internal/domain"
)

var kindCodes = map[domain.ErrorKind]codes.Code{
	domain.KindInvalidRange:        codes.InvalidArgument,
	domain.KindOverlapsExisting:    codes.AlreadyExists,
	domain.KindSlotUnavailable:     codes.Aborted,
	domain.KindOutsideAvailability: codes.FailedPrecondition,
	domain.KindNotFound:            codes.NotFound,
	domain.KindForbidden:           codes.PermissionDenied,
	domain.KindStorageUnavailable:  codes.Unavailable,
}

// statusFromError maps a service error to the status returned to callers. Causes
// wrapped inside domain errors are never exposed.
func statusFromError(err error) *status.Status {
	var de *domain.Error
	if errors.As(err, &de) {
		code, ok := kindCodes[de.Kind]
		if !ok {
			return status.New(codes.Internal, "internal error")
		}
		if code == codes.Unavailable {
			return status.New(code, "service temporarily unavailable, try again")
		}
		return status.New(code, de.Message())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err)
	}
	return status.New(codes.Internal, "internal error")
}
