package nbi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/coverage-planner/core"
	"github.com/signalsfoundry/coverage-planner/internal/heatmap"
	"github.com/signalsfoundry/coverage-planner/internal/nbi/types"
	"github.com/signalsfoundry/coverage-planner/internal/state"
)

var (
	// ErrNotFound is a package-level sentinel used when an entity cannot be located.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest is a package-level sentinel used for client-side validation failures.
	ErrInvalidRequest = errors.New("invalid request")
)

// ToStatusError maps planner errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, state.ErrAntennaNotFound),
		errors.Is(err, state.ErrWallNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, types.ErrInvalidMessage),
		errors.Is(err, state.ErrInvalidCount),
		errors.Is(err, state.ErrInvalidMode),
		errors.Is(err, heatmap.ErrInvalidBackendGrid):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrInvalidFloor):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, state.ErrAntennaExists),
		errors.Is(err, state.ErrWallExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
