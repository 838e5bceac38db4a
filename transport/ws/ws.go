// Package ws exposes a WebSocket ingestion source. Each text frame carries
// one of the three accepted payload shapes (blob, array, single object) and
// is handed to the configured ingest function; a frame that fails to ingest
// is logged and skipped so one bad producer frame never tears down the
// connection.
package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"

	"github.com/hupe1980/reconcile/logging"
)

// IngestFunc receives one raw frame payload.
type IngestFunc func(ctx context.Context, payload []byte) error

type wsReader interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
}

// Source is an http.Handler accepting WebSocket connections from event
// producers.
type Source struct {
	ingest IngestFunc
	logger logging.Logger
}

// NewSource constructs a Source. A nil logger is substituted with NoOpLogger.
func NewSource(ingest IngestFunc, logger logging.Logger) *Source {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Source{ingest: ingest, logger: logger}
}

// ServeHTTP upgrades the connection and pumps frames into the ingest
// function until the producer closes or the request context ends.
func (s *Source) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	if err := s.pumpFrames(r.Context(), conn); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "ingest error")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

// pumpFrames reads frames until the reader fails. Ingest failures are
// contained per frame; only transport-level errors end the pump.
func (s *Source) pumpFrames(ctx context.Context, reader wsReader) error {
	for {
		msgType, data, err := reader.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("websocket read failed", "error", err.Error())
			return err
		}
		if msgType != websocket.MessageText {
			s.logger.Debug("non-text frame skipped")
			continue
		}
		if err := s.ingest(ctx, data); err != nil {
			s.logger.Warn("frame ingestion failed", "error", err.Error())
		}
	}
}
