package rpc

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"adflow/internal/gateway/service/project"
	"adflow/internal/pipeline"
)

// EventsHandler pushes pipeline events for one project over a websocket and
// accepts interview answers on the same connection.
type EventsHandler struct {
	svc *project.Service
	log *zap.Logger
}

func NewEventsHandler(svc *project.Service, log *zap.Logger) *EventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventsHandler{svc: svc, log: log}
}

const (
	eventsWSWriteWait = 10 * time.Second
	eventsWSPongWait  = 60 * time.Second
	eventsWSPingEvery = (eventsWSPongWait * 9) / 10
)

var eventsWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type eventsWSInbound struct {
	Type    string         `json:"type"`
	Answers map[string]any `json:"answers,omitempty"`
}

type eventsWSOutbound struct {
	Type      string              `json:"type"`
	ProjectID string              `json:"project_id,omitempty"`
	Event     *pipeline.Event     `json:"event,omitempty"`
	Status    *project.StatusView `json:"status,omitempty"`
	Code      string              `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		http.Error(w, "project_id is required", http.StatusBadRequest)
		return
	}
	untilPause := r.URL.Query().Get("until_pause") == "true"

	conn, err := eventsWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := h.log.With(zap.String("project_id", projectID))

	if err := conn.SetReadDeadline(time.Now().Add(eventsWSPongWait)); err != nil {
		log.Warn("events ws set read deadline failed", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsWSPongWait))
	})

	events, err := h.svc.StreamEvents(ctx, projectID, untilPause)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait))
		_ = conn.WriteJSON(wsError(err))
		return
	}

	writeCh := make(chan eventsWSOutbound, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(eventsWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	pushEventsWS(writeCh, eventsWSOutbound{Type: "subscribed", ProjectID: projectID})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					pushEventsWS(writeCh, eventsWSOutbound{Type: "stream_closed", ProjectID: projectID})
					return
				}
				pushEventsWS(writeCh, eventsWSOutbound{Type: "event", ProjectID: projectID, Event: &ev})
			}
		}
	}()

	for {
		var in eventsWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "":
			pushEventsWS(writeCh, eventsWSOutbound{Type: "error", Code: "invalid_argument", Message: "type is required"})
		case "ping":
			pushEventsWS(writeCh, eventsWSOutbound{Type: "pong"})
		case "submit_answers":
			st, err := h.svc.SubmitAnswers(ctx, projectID, in.Answers)
			if err != nil {
				log.Info("ws submit rejected", zap.Error(err))
				pushEventsWS(writeCh, wsError(err))
				continue
			}
			pushEventsWS(writeCh, eventsWSOutbound{Type: "submit_ack", ProjectID: projectID, Status: &st})
		case "status":
			st, err := h.svc.GetStatus(ctx, projectID)
			if err != nil {
				pushEventsWS(writeCh, wsError(err))
				continue
			}
			pushEventsWS(writeCh, eventsWSOutbound{Type: "status", ProjectID: projectID, Status: &st})
		default:
			pushEventsWS(writeCh, eventsWSOutbound{
				Type:    "error",
				Code:    "invalid_argument",
				Message: "unsupported type: " + in.Type,
			})
		}
	}
}

func wsError(err error) eventsWSOutbound {
	return eventsWSOutbound{Type: "error", Code: codeOf(err).String(), Message: err.Error()}
}

// pushEventsWS never blocks: when the buffer is full the oldest message is
// dropped.
func pushEventsWS(writeCh chan eventsWSOutbound, out eventsWSOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
