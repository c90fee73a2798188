package dispatch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/arlens/burrow/internal/event"
)

// observerBuffer sizes the per-connection event queue. The front-end
// drains continuously; the buffer only has to absorb bursts within one
// batch flush.
const observerBuffer = 1024

// Server exposes the request surface over HTTP and the event surface
// over server-sent events. Each SSE connection is one observer with
// its own subscription lifecycle.
type Server struct {
	disp *Dispatcher
	bus  *event.Bus
	log  zerolog.Logger

	nextObserver atomic.Int64
}

// NewServer builds the HTTP front for a dispatcher.
func NewServer(disp *Dispatcher, bus *event.Bus, logger zerolog.Logger) *Server {
	return &Server{disp: disp, bus: bus, log: logger}
}

// Router returns the configured route set.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/{channel}", s.handleRequest).Methods(http.MethodPost)
	return r
}

// handleRequest decodes the argument tuple and routes it through the
// dispatcher. The response is always a JSON status object.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]

	var args []any
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, Response{"success": false, "error": "validation", "details": []string{"request body unreadable"}})
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			writeJSON(w, Response{"success": false, "error": "validation", "details": []string{"request body must be a JSON array"}})
			return
		}
	}
	if args == nil {
		args = []any{}
	}

	observerID, _ := strconv.ParseInt(r.Header.Get("X-Observer-Id"), 10, 64)
	writeJSON(w, s.disp.Handle(observerID, channel, args))
}

// handleEvents attaches one observer for the lifetime of the
// connection and streams published events to it. An event that finds
// the observer's buffer full is dropped for that observer and logged.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	observerID, _ := strconv.ParseInt(r.URL.Query().Get("observer"), 10, 64)
	if observerID == 0 {
		observerID = s.nextObserver.Add(1)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan event.Event, observerBuffer)
	subID := s.bus.Attach(func(ev event.Event) {
		select {
		case ch <- ev:
		default:
			s.log.Warn().Str("channel", ev.Channel).Int64("observer", observerID).
				Msg("event dropped for saturated observer")
		}
	})
	defer func() {
		s.bus.Detach(subID)
		s.disp.ObserverGone(observerID)
	}()

	s.log.Info().Int64("observer", observerID).Msg("observer attached")

	// Every observer starts from the current settings record.
	writeEvent(w, event.Event{Channel: "settings:loaded", Payload: s.disp.settings.Get()})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.log.Info().Int64("observer", observerID).Msg("observer detached")
			return
		case ev := <-ch:
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev event.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Channel, data)
	return err
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// The connection is already gone; nothing useful remains to do.
		return
	}
}
