package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/CleoKiama/cadence/internal/ingest"
)

// SyncStartData is the payload of sync_start
type SyncStartData struct {
	Root  string `json:"root"`
	Total int    `json:"total"`
}

// SyncProgressData is the payload of sync_progress
type SyncProgressData struct {
	Percent int `json:"percent"`
}

// SyncCompleteData is the payload of sync_complete
type SyncCompleteData struct {
	Root       string `json:"root"`
	Total      int    `json:"total"`
	Submitted  int    `json:"submitted"`
	Cancelled  bool   `json:"cancelled"`
	DurationMS int64  `json:"duration_ms"`
}

// FileIngestedData is the payload of file_ingested
type FileIngestedData struct {
	Path    string `json:"path"`
	Action  string `json:"action"` // ingested, deleted
	Records int    `json:"records"`
}

// WatchErrorData is the payload of watch_error
type WatchErrorData struct {
	Error string `json:"error"`
}

// Handler turns pipeline events into dashboard messages. It implements
// ingest.Observer and provides OnResult and OnWatchError hooks for the
// daemon.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
	}
}

// SyncStarted implements ingest.Observer.
func (h *Handler) SyncStarted(root string, total int) {
	h.send(MessageTypeSyncStart, SyncStartData{Root: root, Total: total})
}

// SyncProgress implements ingest.Observer.
func (h *Handler) SyncProgress(percent int) {
	h.send(MessageTypeSyncProgress, SyncProgressData{Percent: percent})
}

// SyncComplete implements ingest.Observer.
func (h *Handler) SyncComplete(result ingest.SyncResult) {
	h.send(MessageTypeSyncComplete, SyncCompleteData{
		Root:       result.Root,
		Total:      result.Total,
		Submitted:  result.Submitted,
		Cancelled:  result.Cancelled,
		DurationMS: result.Duration.Milliseconds(),
	})
}

// OnResult broadcasts files whose stored metrics changed. Skipped and
// failed jobs are not announced.
func (h *Handler) OnResult(res ingest.Result) {
	var action string
	switch res.Outcome {
	case ingest.OutcomeIngested:
		action = "ingested"
	case ingest.OutcomeDeleted:
		action = "deleted"
	default:
		return
	}

	h.send(MessageTypeFileIngested, FileIngestedData{
		Path:    res.Path,
		Action:  action,
		Records: res.Records,
	})
}

// OnWatchError broadcasts a watcher error.
func (h *Handler) OnWatchError(err error) {
	h.send(MessageTypeWatchError, WatchErrorData{Error: err.Error()})
}

func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
