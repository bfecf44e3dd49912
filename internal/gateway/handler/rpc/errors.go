package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	artifactrepo "adflow/internal/gateway/repository/artifact"
	projectrepo "adflow/internal/gateway/repository/project"
	"adflow/internal/gateway/service/project"
	"adflow/internal/pipeline"
)

// toConnect maps domain errors onto connect codes.
func toConnect(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return err
	}
	return connect.NewError(codeOf(err), err)
}

func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, projectrepo.ErrNotFound),
		errors.Is(err, artifactrepo.ErrNotFound),
		errors.Is(err, pipeline.ErrItemNotFound):
		return connect.CodeNotFound
	case errors.Is(err, project.ErrInvalidArgument),
		errors.Is(err, pipeline.ErrInvalidRefinement):
		return connect.CodeInvalidArgument
	case errors.Is(err, pipeline.ErrNotStartable),
		errors.Is(err, pipeline.ErrNotAwaitingAnswers),
		errors.Is(err, pipeline.ErrNotResumable),
		errors.Is(err, pipeline.ErrNotCompleted),
		errors.Is(err, pipeline.ErrRunInProgress),
		errors.Is(err, artifactrepo.ErrNoArtifact),
		errors.Is(err, artifactrepo.ErrInvalidTransition):
		return connect.CodeFailedPrecondition
	case errors.Is(err, projectrepo.ErrExists),
		errors.Is(err, artifactrepo.ErrVersionConflict):
		return connect.CodeAlreadyExists
	case errors.Is(err, pipeline.ErrRunnerClosed):
		return connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	}
	return connect.CodeInternal
}
