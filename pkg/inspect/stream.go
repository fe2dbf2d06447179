package inspect

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/ripple/pkg/ripple"
)

// Frame is one websocket message: the selected value after a change.
type Frame struct {
	Cell   string          `json:"cell"`
	Select string          `json:"select,omitempty"`
	Seq    uint64          `json:"seq"`
	Value  json.RawMessage `json:"value"`
}

// stream is one websocket subscriber. Frames are encoded on the goroutine
// that wrote the cell and handed to writeLoop through a bounded queue.
type stream struct {
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration

	cell    string
	sel     string
	ref     ripple.Ref
	dispose ripple.Disposer

	mu  sync.Mutex
	seq uint64
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	name, ref, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sel := r.URL.Query().Get("select")
	if sel != "" && ref.Kind() != ripple.KindComposite {
		writeError(w, http.StatusConflict, ripple.ErrNotComposite)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "cell", name, "error", err)
		return
	}

	st := &stream{
		conn:         conn,
		send:         make(chan []byte, s.config.SendBuffer),
		done:         make(chan struct{}),
		writeTimeout: s.config.WriteTimeout,
		cell:         name,
		sel:          sel,
		ref:          ref,
	}
	s.track(st)
	defer s.untrack(st)

	st.dispose = ref.SubscribeAny(st.changed, st.project)
	defer st.dispose()

	st.push()
	s.logger.Debug("stream opened", "cell", name, "select", sel)

	go st.writeLoop()
	st.readLoop()
	st.close(websocket.CloseNormalClosure, "")
	s.logger.Debug("stream closed", "cell", name)
}

// project selects the streamed part of the cell's value.
func (st *stream) project(v any) any {
	if st.sel == "" {
		return v
	}
	n, ok := v.(*ripple.Node)
	if !ok {
		return nil
	}
	out, _ := n.GetPath(st.sel)
	return out
}

// current returns the selected value as plain data.
func (st *stream) current() any {
	var v any
	if n, ok := st.ref.(interface{ Peek() *ripple.Node }); ok {
		v = st.project(n.Peek())
	} else {
		v = st.project(st.ref.Snapshot())
	}
	if n, ok := v.(*ripple.Node); ok {
		return n.Snapshot()
	}
	return v
}

func (st *stream) changed() {
	st.push()
}

// push encodes the current selection and queues it. A full queue means the
// client is too slow; the stream is closed instead of blocking the writer.
func (st *stream) push() {
	value, err := json.Marshal(st.current())
	if err != nil {
		value = []byte("null")
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	data, err := json.Marshal(Frame{Cell: st.cell, Select: st.sel, Seq: st.seq, Value: value})
	if err != nil {
		return
	}

	select {
	case <-st.done:
	case st.send <- data:
	default:
		go st.close(websocket.ClosePolicyViolation, "client too slow")
	}
}

func (st *stream) writeLoop() {
	for {
		select {
		case data := <-st.send:
			st.conn.SetWriteDeadline(time.Now().Add(st.writeTimeout))
			if err := st.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				st.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-st.done:
			return
		}
	}
}

// readLoop discards client messages until the connection fails or closes.
func (st *stream) readLoop() {
	for {
		if _, _, err := st.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// close sends a close frame (best effort) and tears the connection down.
func (st *stream) close(code int, reason string) {
	st.closeOnce.Do(func() {
		close(st.done)
		if code != websocket.CloseAbnormalClosure {
			msg := websocket.FormatCloseMessage(code, reason)
			st.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		st.conn.Close()
	})
}
