package api

import (
	"net/http"
	"strconv"

	"github.com/jmcleod/fpsim/journal"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 500
)

// parseEventQuery reads the "after" cursor and "limit" query parameters.
// Missing or invalid values fall back to defaults (after=0,
// limit=defaultPageLimit); limit is capped at maxPageLimit.
func parseEventQuery(r *http.Request) (after uint64, limit int) {
	q := r.URL.Query()

	if v := q.Get("after"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			after = n
		}
	}

	limit = defaultPageLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return after, limit
}

// pageEvents truncates events to limit and fills the cursor for the next
// request. An empty page keeps the caller's cursor.
func pageEvents(events []journal.Event, after uint64, limit int) EventsResponse {
	resp := EventsResponse{NextAfter: after}
	if len(events) > limit {
		events = events[:limit]
		resp.HasMore = true
	}
	if events == nil {
		events = []journal.Event{}
	}
	resp.Events = events
	if n := len(events); n > 0 {
		resp.NextAfter = events[n-1].Seq
	}
	return resp
}
