package extract

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/source"
)

// Classify maps a backend or source error onto an error kind
func Classify(err error) domain.ErrorKind {
	switch {
	case errors.Is(err, source.ErrNotFound):
		return domain.KindInvalidDocument
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.KindTransient
	}

	st, ok := status.FromError(err)
	if !ok {
		return domain.KindTransient
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return domain.KindRateLimited
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.OutOfRange:
		return domain.KindInvalidDocument
	case codes.Unauthenticated, codes.PermissionDenied:
		return domain.KindUnauthorized
	default:
		return domain.KindTransient
	}
}
