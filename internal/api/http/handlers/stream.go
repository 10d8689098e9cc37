package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tokentable/internal/domain"
	"tokentable/internal/format"
	"tokentable/internal/table"
)

// StreamEvent is one server-sent "state" event: everything a table view needs to re-render
type StreamEvent struct {
	Version  uint64                           `json:"version"`
	Sort     domain.Sort                      `json:"sort"`
	Filter   domain.Filter                    `json:"filter"`
	Loading  bool                             `json:"loading"`
	Error    *string                          `json:"error"`
	Visible  int                              `json:"visible"`
	Sections map[domain.Category][]format.Row `json:"sections"`
	Selected *format.Row                      `json:"selected"`
}

func eventOf(st table.State) StreamEvent {
	ev := StreamEvent{
		Version:  st.Version,
		Sort:     st.Sort,
		Filter:   st.Filter,
		Loading:  st.Loading,
		Error:    st.Error,
		Visible:  len(st.Visible),
		Sections: make(map[domain.Category][]format.Row, len(st.Sections)),
	}
	for c, toks := range st.Sections {
		ev.Sections[c] = format.Rows(toks)
	}
	if st.Selected != nil {
		row := format.RowOf(*st.Selected)
		ev.Selected = &row
	}
	return ev
}

// Stream pushes the current state, then every change, as server-sent events.
// Slow clients skip intermediate states: each event is a full snapshot.
func (a *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	updates := make(chan table.State, a.StreamCfg.Buffer)
	cancel := a.Table.Subscribe(func(st table.State) {
		// single producer: writes to the store are serialized
		select {
		case updates <- st:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- st:
			default:
			}
		}
	})
	defer cancel()

	a.Metrics.StreamClients.Inc()
	defer a.Metrics.StreamClients.Dec()

	last := a.Table.State()
	if err := writeEvent(w, rc, last); err != nil {
		a.Log.Debugf("Stream closed on first write, error=%v", err)
		return
	}

	heartbeat := time.NewTicker(a.StreamCfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-updates:
			if st.Version <= last.Version {
				continue
			}
			last = st
			if err := writeEvent(w, rc, st); err != nil {
				a.Log.Debugf("Stream write failed, error=%v", err)
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, st table.State) error {
	b, err := json.Marshal(eventOf(st))
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", st.Version, b); err != nil {
		return err
	}
	return rc.Flush()
}
