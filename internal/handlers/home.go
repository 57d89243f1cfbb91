package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/streamchat/internal/markdown"
	"github.com/MegaGrindStone/streamchat/internal/models"
)

type message struct {
	ID        string
	Role      string
	Content   template.HTML
	Timestamp time.Time

	StreamingState string
}

type homePageData struct {
	Messages   []message
	Status     string
	Completion bool
}

// Streaming states of a rendered assistant message.
const (
	stateLoading   = "loading"
	stateStreaming = "streaming"
	stateEnded     = "ended"
)

// HandleHome renders the whole transcript. The last assistant message keeps its SSE connection if a
// session is still open.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := m.controller.Snapshot()
	msgs := make([]message, len(snap.Messages))
	for i, msg := range snap.Messages {
		state := stateEnded
		if i == len(snap.Messages)-1 {
			state = streamingState(snap.Status)
		}
		msgs[i] = m.message(msg, state)
	}

	data := homePageData{
		Messages:   msgs,
		Status:     string(snap.Status),
		Completion: m.completion,
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func streamingState(status models.Status) string {
	switch status {
	case models.StatusLoading:
		return stateLoading
	case models.StatusStreaming:
		return stateStreaming
	default:
		return stateEnded
	}
}

// message prepares msg for the templates. User text is escaped as is; assistant text is Markdown.
func (m Main) message(msg models.Message, state string) message {
	return message{
		ID:             msg.ID,
		Role:           string(msg.Role),
		Content:        m.renderContent(msg),
		Timestamp:      msg.Timestamp,
		StreamingState: state,
	}
}

func (m Main) renderContent(msg models.Message) template.HTML {
	if msg.Role != models.RoleAssistant {
		return markdown.Plain(msg.Content)
	}
	content, err := markdown.Render(msg.Content)
	if err != nil {
		m.logger.Error("Failed to render markdown",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
		return markdown.Plain(msg.Content)
	}
	return content
}
