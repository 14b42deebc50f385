package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"taskhub/api/internal/messaging"
)

const eventsPingInterval = 25 * time.Second

// handleConversationEvents streams one conversation as server-sent events: a snapshot of the
// visible history first, then every pushed message. The stream ends when the client goes away.
func (s *HTTPServer) handleConversationEvents(w http.ResponseWriter, r *http.Request, session Session, conversationID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Streaming unsupported", nil)
		return
	}

	events := make(chan messaging.Entry, 64)
	syncer := s.service.NewSynchronizer(session, messaging.WithAppendHook(func(e messaging.Entry) {
		select {
		case events <- e:
		default:
			logrus.WithFields(logrus.Fields{
				"conversation_id": conversationID,
				"message_id":      e.ID,
			}).Warn("dropping event for slow stream")
		}
	}))

	ctx := r.Context()
	if err := syncer.Open(ctx, conversationID); err != nil {
		writeMappedError(w, err)
		return
	}
	defer syncer.Close()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snapshot := make([]map[string]any, 0)
	for _, e := range syncer.Messages() {
		snapshot = append(snapshot, entryPayload(e))
	}
	if err := writeEvent(w, "snapshot", map[string]any{"conversationId": conversationID, "messages": snapshot}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			if err := writeEvent(w, "message", entryPayload(e)); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
