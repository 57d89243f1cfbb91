package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MegaGrindStone/streamchat"
	"github.com/MegaGrindStone/streamchat/internal/chat"
	"github.com/tmaxmax/go-sse"
)

// Controller is the conversation the handlers expose. It is satisfied by *chat.Controller.
type Controller interface {
	Submit(text string) (chat.Turn, error)
	Complete(text string) (chat.Turn, error)
	Abort() bool
	Snapshot() chat.Snapshot
}

// Main handles the core functionality of the chat application, managing server-sent events, HTML
// templates, and the interactions between the browser and the Controller.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	controller Controller
	completion bool

	stream *streamState

	logger *slog.Logger
}

// streamState remembers which assistant message the browser is listening to, so it can be told to
// disconnect once that message stops changing.
type streamState struct {
	mu        sync.Mutex
	messageID string
}

const errLoggerKey = "err"

// NewMain creates a new Main serving controller. The completion flag shows the non-streaming send
// button; it should be set when the controller was built with a Completer. The SSE server subscribes every
// client to the default topic, plus the topic of the message given by the message_id query parameter.
func NewMain(controller Controller, completion bool, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		streamchat.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("error parsing templates: %w", err)
	}

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(_ http.ResponseWriter, r *http.Request) ([]string, bool) {
				topics := []string{sse.DefaultTopic}
				if messageID := r.URL.Query().Get("message_id"); messageID != "" {
					topics = append(topics, messageIDTopic(messageID))
				}
				return topics, true
			},
		},
		templates:  tmpl,
		controller: controller,
		completion: completion,
		stream:     &streamState{},
		logger:     logger.With(slog.String("module", "main")),
	}, nil
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

// HandleSSE serves the server-sent event stream that carries assistant message updates.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to all
// connected clients and waits up to 5 seconds for connections to terminate. After the timeout, any
// remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
