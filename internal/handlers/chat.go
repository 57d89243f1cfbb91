package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/streamchat/internal/chat"
	"github.com/MegaGrindStone/streamchat/internal/models"
	"github.com/tmaxmax/go-sse"
)

// SSE event types for real-time updates.
var (
	messagesSSEType     = sse.Type("messages")
	closeMessageSSEType = sse.Type("closeMessage")
)

// HandleChats submits the "message" form field and streams the answer through the controller. It responds
// with the user message and the assistant placeholder; the placeholder then follows the stream over SSE.
//
// The function returns 405 for invalid methods and 400 for an empty message.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	m.handleSend(w, r, m.controller.Submit)
}

// HandleComplete is HandleChats for the non-streaming path: the whole answer arrives in one update. It
// returns 501 if the controller has no Completer.
func (m Main) HandleComplete(w http.ResponseWriter, r *http.Request) {
	m.handleSend(w, r, m.controller.Complete)
}

func (m Main) handleSend(w http.ResponseWriter, r *http.Request, send func(string) (chat.Turn, error)) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	turn, err := send(r.FormValue("message"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEmptyMessage):
			http.Error(w, "Message is required", http.StatusBadRequest)
		case errors.Is(err, chat.ErrNoCompleter):
			http.Error(w, err.Error(), http.StatusNotImplemented)
		default:
			m.logger.Error("Failed to send message", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// Another submission may land before the snapshot, so look the turn up by ID.
	snap := m.controller.Snapshot()
	userIdx, assistantIdx := -1, -1
	for i, msg := range snap.Messages {
		switch msg.ID {
		case turn.UserID:
			userIdx = i
		case turn.AssistantID:
			assistantIdx = i
		}
	}
	if userIdx < 0 || assistantIdx < 0 {
		m.logger.Error("Conversation is missing the sent message",
			slog.String("userID", turn.UserID),
			slog.String("assistantID", turn.AssistantID))
		http.Error(w, "Conversation is missing the sent message", http.StatusInternalServerError)
		return
	}

	um := m.message(snap.Messages[userIdx], stateEnded)
	if err := m.templates.ExecuteTemplate(w, "user_message", um); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	state := stateEnded
	if assistantIdx == len(snap.Messages)-1 {
		state = streamingState(snap.Status)
	}
	am := m.message(snap.Messages[assistantIdx], state)
	if err := m.templates.ExecuteTemplate(w, "ai_message", am); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleAbort cancels the session in flight. It responds 204, or 409 if nothing was streaming.
func (m Main) HandleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !m.controller.Abort() {
		http.Error(w, "No response in progress", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Publish pushes the current state of the last assistant message to the browser. It is meant to be the
// controller's change hook. Once that message stops changing, because its session closed or a newer one
// replaced it, its listeners receive closeMessage.
func (m Main) Publish() {
	m.stream.mu.Lock()
	defer m.stream.mu.Unlock()

	// Snapshots are taken under the lock so an older one is never published after a newer one.
	snap := m.controller.Snapshot()

	var last models.Message
	hasLast := false
	if n := len(snap.Messages); n > 0 && snap.Messages[n-1].Role == models.RoleAssistant {
		last, hasLast = snap.Messages[n-1], true
	}

	if m.stream.messageID != "" && (!hasLast || last.ID != m.stream.messageID) {
		m.publishClose(m.stream.messageID)
		m.stream.messageID = ""
	}
	if !hasLast {
		return
	}

	if last.Content != "" {
		msg := sse.Message{Type: messagesSSEType}
		msg.AppendData(string(m.renderContent(last)))
		if err := m.sseSrv.Publish(&msg, messageIDTopic(last.ID)); err != nil {
			m.logger.Error("Failed to publish message",
				slog.String("messageID", last.ID),
				slog.String(errLoggerKey, err.Error()))
		}
	}

	if snap.Status.Active() {
		m.stream.messageID = last.ID
		return
	}
	m.publishClose(last.ID)
	m.stream.messageID = ""
}

func (m Main) publishClose(messageID string) {
	e := &sse.Message{Type: closeMessageSSEType}
	e.AppendData("bye")
	if err := m.sseSrv.Publish(e, messageIDTopic(messageID)); err != nil {
		m.logger.Error("Failed to publish close message",
			slog.String("messageID", messageID),
			slog.String(errLoggerKey, err.Error()))
	}
}
