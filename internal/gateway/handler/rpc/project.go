package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	"adflow/internal/artifact"
	"adflow/internal/gateway/service/project"
	"adflow/internal/pipeline"
	"adflow/internal/types"
)

// ServiceName is the connect service path prefix.
const ServiceName = "adflow.v1.ProjectService"

const (
	ProcCreateProject   = "/" + ServiceName + "/CreateProject"
	ProcStartPipeline   = "/" + ServiceName + "/StartPipeline"
	ProcSubmitAnswers   = "/" + ServiceName + "/SubmitAnswers"
	ProcCancelRun       = "/" + ServiceName + "/CancelRun"
	ProcGetStatus       = "/" + ServiceName + "/GetStatus"
	ProcListProjects    = "/" + ServiceName + "/ListProjects"
	ProcStreamEvents    = "/" + ServiceName + "/StreamEvents"
	ProcListArtifacts   = "/" + ServiceName + "/ListArtifacts"
	ProcLatestArtifact  = "/" + ServiceName + "/LatestArtifact"
	ProcGetArtifact     = "/" + ServiceName + "/GetArtifact"
	ProcEditArtifact    = "/" + ServiceName + "/EditArtifact"
	ProcRegenerateItem  = "/" + ServiceName + "/RegenerateItem"
	ProcCreateVariation = "/" + ServiceName + "/CreateVariation"
	ProcGenerateMore    = "/" + ServiceName + "/GenerateMore"
	ProcGetSummary      = "/" + ServiceName + "/GetSummary"
)

type CreateProjectRequest struct {
	OwnerID string `json:"owner_id"`
	URL     string `json:"url"`
	Name    string `json:"name,omitempty"`
}

type ProjectRequest struct {
	ProjectID string `json:"project_id"`
}

type SubmitAnswersRequest struct {
	ProjectID string         `json:"project_id"`
	Answers   map[string]any `json:"answers"`
}

type ListProjectsRequest struct {
	OwnerID string `json:"owner_id"`
}

type StreamEventsRequest struct {
	ProjectID  string `json:"project_id"`
	UntilPause bool   `json:"until_pause,omitempty"`
}

type ArtifactRequest struct {
	ProjectID  string `json:"project_id,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty"`
	Type       string `json:"type,omitempty"`
}

type EditArtifactRequest struct {
	ProjectID string          `json:"project_id"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	Feedback  string          `json:"feedback,omitempty"`
}

type RefineRequest struct {
	ProjectID string `json:"project_id"`
	ItemID    string `json:"item_id,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Count     int    `json:"count,omitempty"`
}

type ProjectResponse struct {
	Project types.Project `json:"project"`
}

type StatusResponse = project.StatusView

type ProjectsResponse struct {
	Projects []types.Project `json:"projects"`
}

type ArtifactResponse struct {
	Artifact artifact.Artifact `json:"artifact"`
}

type ArtifactsResponse struct {
	Artifacts []artifact.Artifact `json:"artifacts"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}

// ProjectHandler exposes project.Service as a connect service speaking JSON.
type ProjectHandler struct {
	svc *project.Service
	log *zap.Logger
}

func NewProjectHandler(svc *project.Service, log *zap.Logger) *ProjectHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProjectHandler{svc: svc, log: log}
}

// HandlerOptions are the connect options shared by handlers and clients.
func HandlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{connect.WithCodec(jsonCodec{})}
}

// ClientOptions configures a connect client to talk to ProjectHandler.
func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{connect.WithCodec(jsonCodec{})}
}

// Routes returns every procedure keyed by its path.
func (h *ProjectHandler) Routes() map[string]http.Handler {
	opts := HandlerOptions()
	return map[string]http.Handler{
		ProcCreateProject: connect.NewUnaryHandlerSimple(ProcCreateProject, func(ctx context.Context, req *CreateProjectRequest) (*ProjectResponse, error) {
			p, err := h.svc.CreateProject(ctx, req.OwnerID, req.URL, req.Name)
			if err != nil {
				return nil, toConnect(err)
			}
			return &ProjectResponse{Project: p}, nil
		}, opts...),
		ProcStartPipeline: connect.NewUnaryHandlerSimple(ProcStartPipeline, func(ctx context.Context, req *ProjectRequest) (*StatusResponse, error) {
			return status(h.svc.StartPipeline(ctx, req.ProjectID))
		}, opts...),
		ProcSubmitAnswers: connect.NewUnaryHandlerSimple(ProcSubmitAnswers, func(ctx context.Context, req *SubmitAnswersRequest) (*StatusResponse, error) {
			return status(h.svc.SubmitAnswers(ctx, req.ProjectID, req.Answers))
		}, opts...),
		ProcCancelRun: connect.NewUnaryHandlerSimple(ProcCancelRun, func(ctx context.Context, req *ProjectRequest) (*StatusResponse, error) {
			return status(h.svc.CancelRun(ctx, req.ProjectID))
		}, opts...),
		ProcGetStatus: connect.NewUnaryHandlerSimple(ProcGetStatus, func(ctx context.Context, req *ProjectRequest) (*StatusResponse, error) {
			return status(h.svc.GetStatus(ctx, req.ProjectID))
		}, opts...),
		ProcListProjects: connect.NewUnaryHandlerSimple(ProcListProjects, func(ctx context.Context, req *ListProjectsRequest) (*ProjectsResponse, error) {
			list, err := h.svc.ListProjects(ctx, req.OwnerID)
			if err != nil {
				return nil, toConnect(err)
			}
			return &ProjectsResponse{Projects: list}, nil
		}, opts...),
		ProcStreamEvents: connect.NewServerStreamHandlerSimple(ProcStreamEvents, h.streamEvents, opts...),
		ProcListArtifacts: connect.NewUnaryHandlerSimple(ProcListArtifacts, func(ctx context.Context, req *ProjectRequest) (*ArtifactsResponse, error) {
			list, err := h.svc.ListArtifacts(ctx, req.ProjectID)
			if err != nil {
				return nil, toConnect(err)
			}
			return &ArtifactsResponse{Artifacts: list}, nil
		}, opts...),
		ProcLatestArtifact: connect.NewUnaryHandlerSimple(ProcLatestArtifact, func(ctx context.Context, req *ArtifactRequest) (*ArtifactResponse, error) {
			return single(h.svc.LatestArtifact(ctx, req.ProjectID, req.Type))
		}, opts...),
		ProcGetArtifact: connect.NewUnaryHandlerSimple(ProcGetArtifact, func(ctx context.Context, req *ArtifactRequest) (*ArtifactResponse, error) {
			return single(h.svc.GetArtifact(ctx, req.ArtifactID))
		}, opts...),
		ProcEditArtifact: connect.NewUnaryHandlerSimple(ProcEditArtifact, func(ctx context.Context, req *EditArtifactRequest) (*ArtifactResponse, error) {
			return single(h.svc.EditArtifact(ctx, req.ProjectID, req.Type, req.Content, req.Feedback))
		}, opts...),
		ProcRegenerateItem: connect.NewUnaryHandlerSimple(ProcRegenerateItem, func(ctx context.Context, req *RefineRequest) (*ArtifactResponse, error) {
			return single(h.svc.RegenerateItem(ctx, req.ProjectID, req.ItemID, req.Feedback))
		}, opts...),
		ProcCreateVariation: connect.NewUnaryHandlerSimple(ProcCreateVariation, func(ctx context.Context, req *RefineRequest) (*ArtifactResponse, error) {
			return single(h.svc.CreateVariation(ctx, req.ProjectID, req.ItemID, req.Kind))
		}, opts...),
		ProcGenerateMore: connect.NewUnaryHandlerSimple(ProcGenerateMore, func(ctx context.Context, req *RefineRequest) (*ArtifactResponse, error) {
			return single(h.svc.GenerateMore(ctx, req.ProjectID, req.Platform, req.Count))
		}, opts...),
		ProcGetSummary: connect.NewUnaryHandlerSimple(ProcGetSummary, func(ctx context.Context, req *ProjectRequest) (*SummaryResponse, error) {
			s, err := h.svc.Summary(ctx, req.ProjectID)
			if err != nil {
				return nil, toConnect(err)
			}
			return &SummaryResponse{Summary: s}, nil
		}, opts...),
	}
}

func (h *ProjectHandler) streamEvents(ctx context.Context, req *StreamEventsRequest, stream *connect.ServerStream[pipeline.Event]) error {
	events, err := h.svc.StreamEvents(ctx, req.ProjectID, req.UntilPause)
	if err != nil {
		return toConnect(err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := stream.Send(&ev); err != nil {
				h.log.Debug("event stream send failed", zap.String("project_id", req.ProjectID), zap.Error(err))
				return err
			}
		}
	}
}

func status(v project.StatusView, err error) (*StatusResponse, error) {
	if err != nil {
		return nil, toConnect(err)
	}
	return &v, nil
}

func single(a artifact.Artifact, err error) (*ArtifactResponse, error) {
	if err != nil {
		return nil, toConnect(err)
	}
	return &ArtifactResponse{Artifact: a}, nil
}
