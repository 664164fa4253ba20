package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/readrealm/internal/auth"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/query"
	"github.com/sakif/readrealm/internal/service"
	"github.com/sakif/readrealm/internal/validation"
)

// ChatHandler serves reading groups and their messages.
type ChatHandler struct {
	chat      *service.ChatService
	validator *validation.Validator
	logger    *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewChatHandler(chat *service.ChatService, validator *validation.Validator, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, validator: validator, logger: logger, done: make(chan struct{})}
}

// Close ends every open stream. It is safe to call more than once.
func (h *ChatHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

type createGroupRequest struct {
	Name string `json:"name" validate:"required"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// HTTP: GET /api/groups
func (h *ChatHandler) HandleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.chat.Groups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, groups)
}

// HTTP: POST /api/groups (auth)
func (h *ChatHandler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createGroupRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := h.chat.CreateGroup(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDone(w, http.StatusCreated, g, "Group created")
}

// HTTP: GET /api/groups/{id}/messages
func (h *ChatHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.chat.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, msgs)
}

// HTTP: POST /api/groups/{id}/messages (auth)
// REQUEST BODY: {"text": "hello"}
func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req sendMessageRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	m, err := h.chat.SendMessage(r.Context(), userID, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDone(w, http.StatusCreated, m, "Message sent")
}

// HandleStream pushes the group's messages as Server-Sent Events.
//
// HTTP: GET /api/groups/{id}/messages/stream
//
// SERVER-SENT EVENTS:
// The response stays open and each update is written as
//
//	event: messages
//	data: [...]
//
// followed by a blank line. Updates come from the polled messages key, so a
// new message shows up within one poll interval. The poll stops when the last
// open stream for the group goes away.
func (h *ChatHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	if _, err := h.chat.Group(r.Context(), groupID); err != nil {
		writeError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// the server's write timeout is for ordinary requests
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("stream: cannot clear write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("stream: response does not support flushing", slog.String("error", err.Error()))
		return
	}

	sub := h.chat.Watch(groupID)
	defer sub.Close()

	h.logger.Debug("stream opened", slog.String("group", groupID))
	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("stream closed", slog.String("group", groupID))
			return
		case <-h.done:
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			if err := writeEvent(w, snap); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeEvent renders one snapshot. Pending snapshots are skipped; an error
// keeps the stream open so the next poll can recover.
func writeEvent(w http.ResponseWriter, snap query.Snapshot) error {
	switch snap.Status {
	case query.StatusSuccess:
		msgs, _ := snap.Value.([]model.Message)
		if msgs == nil {
			msgs = []model.Message{}
		}
		return writeSSE(w, "messages", msgs)
	case query.StatusError:
		return writeSSE(w, "error", Notice{Kind: "error", Message: backendMessage(snap.Err)})
	default:
		return nil
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
