package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hellblock.ai/internal/observerproto"
	"hellblock.ai/internal/storage/events"
	"hellblock.ai/internal/storage/manager"
)

// Source is what the observer reads from the storage side.
type Source interface {
	Backend() string
	WorldNames() []string
	Stats() manager.Stats
}

type Subscriber interface {
	Subscribe(buf int) (<-chan events.Event, func())
}

type Server struct {
	src  Source
	subs Subscriber
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(src Source, subs Subscriber, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		src:  src,
		subs: subs,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only, see handlers
		},
	}
}

// Mux wires the observer endpoints.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/observer/stats", s.StatsHandler())
	mux.HandleFunc("/observer/ws", s.WSHandler())
	return mux
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Backend:         s.src.Backend(),
			Worlds:          s.src.WorldNames(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) StatsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.src.Stats())
	}
}

type filter struct {
	worlds map[string]bool
	kinds  map[events.Kind]bool
}

func newFilter(sub observerproto.SubscribeMsg) filter {
	f := filter{}
	if len(sub.Worlds) > 0 {
		f.worlds = map[string]bool{}
		for _, w := range sub.Worlds {
			f.worlds[w] = true
		}
	}
	if len(sub.Kinds) > 0 {
		f.kinds = map[events.Kind]bool{}
		for _, k := range sub.Kinds {
			f.kinds[k] = true
		}
	}
	return f
}

func (f filter) match(e events.Event) bool {
	if f.worlds != nil && !f.worlds[e.World] {
		return false
	}
	if f.kinds != nil && !f.kinds[e.Kind] {
		return false
	}
	return true
}

func readSubscribe(conn *websocket.Conn, timeout time.Duration) (observerproto.SubscribeMsg, bool, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return observerproto.SubscribeMsg{}, false, err
	}
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false, nil
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false, nil
	}
	return sub, true, nil
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		sub, ok, err := readSubscribe(conn, 5*time.Second)
		if err != nil {
			return
		}
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		var fmu sync.RWMutex
		f := newFilter(sub)

		evCh, cancelSub := s.subs.Subscribe(1024)
		defer cancelSub()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case e, ok := <-evCh:
					if !ok {
						writeErr <- nil
						return
					}
					fmu.RLock()
					match := f.match(e)
					fmu.RUnlock()
					if !match {
						continue
					}
					b, err := json.Marshal(observerproto.EventMsg{
						Type:            "EVENT",
						ProtocolVersion: observerproto.Version,
						Event:           e,
					})
					if err != nil {
						continue
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			sub, ok, err := readSubscribe(conn, 60*time.Second)
			if err != nil {
				break
			}
			if !ok {
				continue
			}
			nf := newFilter(sub)
			fmu.Lock()
			f = nf
			fmu.Unlock()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
