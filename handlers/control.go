package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/attendancesys/pipeline"
	"github.com/camden-git/attendancesys/realtime"
	"github.com/camden-git/attendancesys/recognition"
)

// ControlHandler exposes runtime controls: face store reload, the match
// threshold and the camera feeds. Feeds is nil when no pipeline is running.
type ControlHandler struct {
	Faces   *recognition.FaceStore
	Matcher *recognition.Matcher
	Feeds   *pipeline.Manager
	Events  pipeline.Publisher
}

func (ch *ControlHandler) publish(e realtime.Event) {
	if ch.Events != nil {
		ch.Events.Broadcast(e)
	}
}

func (ch *ControlHandler) ReloadFaces(w http.ResponseWriter, r *http.Request) {
	n := ch.Faces.Reload()
	log.Printf("Face store reloaded: %d registered face(s)", n)
	ch.publish(realtime.Event{Type: realtime.EventRegistry, Message: "reloaded", Extra: map[string]any{"count": n}})
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (ch *ControlHandler) GetThreshold(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"threshold": ch.Matcher.Threshold()})
}

func (ch *ControlHandler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold *float64 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold == nil {
		WriteAPIError(w, r, http.StatusBadRequest, "invalid_body", "Body must be {\"threshold\": <0..1>}")
		return
	}
	if !ch.Matcher.SetThreshold(*req.Threshold) {
		WriteAPIError(w, r, http.StatusBadRequest, "invalid_threshold", "threshold must be between 0 and 1, got "+strconv.FormatFloat(*req.Threshold, 'g', -1, 64))
		return
	}
	log.Printf("Similarity threshold set to %.3f", *req.Threshold)
	writeJSON(w, http.StatusOK, map[string]float64{"threshold": ch.Matcher.Threshold()})
}

func (ch *ControlHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	if ch.Feeds == nil {
		writeJSON(w, http.StatusOK, []pipeline.FeedStatus{})
		return
	}
	writeJSON(w, http.StatusOK, ch.Feeds.Statuses())
}

// ResetFeed clears a feed's track bindings and logged-unknown cache.
func (ch *ControlHandler) ResetFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "feed_id")
	if ch.Feeds == nil || !ch.Feeds.Reset(id) {
		WriteAPIError(w, r, http.StatusNotFound, "feed_not_found", "Feed not found: "+id)
		return
	}
	ch.publish(realtime.Event{Type: realtime.EventFeed, Feed: id, Message: "cache cleared"})
	w.WriteHeader(http.StatusAccepted)
}

// FeedFrame serves the last annotated frame of a feed.
func (ch *ControlHandler) FeedFrame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "feed_id")
	if ch.Feeds == nil {
		WriteAPIError(w, r, http.StatusNotFound, "feed_not_found", "Feed not found: "+id)
		return
	}
	if _, ok := ch.Feeds.Feed(id); !ok {
		WriteAPIError(w, r, http.StatusNotFound, "feed_not_found", "Feed not found: "+id)
		return
	}
	frame, ok := ch.Feeds.LatestFrame(id)
	if !ok {
		WriteAPIError(w, r, http.StatusServiceUnavailable, "no_frame", "No frame rendered yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.Write(frame)
}
