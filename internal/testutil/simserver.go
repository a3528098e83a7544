package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// SimRequest is one request received by a SimServer, body decoded.
type SimRequest struct {
	Path          string
	Authorization string
	Mapping       json.RawMessage `json:"mapping"`
	Payload       string          `json:"payload"`
	Format        string          `json:"format"`
	EventName     string          `json:"event_name"`
	ObjectType    string          `json:"object_type"`
}

// SimReply is a canned HTTP response.
type SimReply struct {
	Status int
	Body   string
}

// SimServer is a fake mapping-simulation endpoint.
//
// Replies are served in order; the last one repeats once the queue is
// drained. With no replies it answers 200 with an empty entity list.
type SimServer struct {
	*httptest.Server

	mu       sync.Mutex
	replies  []SimReply
	requests []SimRequest
}

// NewSimServer starts a server that is closed when the test ends.
func NewSimServer(t *testing.T, replies ...SimReply) *SimServer {
	t.Helper()
	s := &SimServer{replies: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Reply appends canned responses.
func (s *SimServer) Reply(replies ...SimReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// ReplyJSON queues a 200 response with the given body.
func (s *SimServer) ReplyJSON(body string) {
	s.Reply(SimReply{Status: http.StatusOK, Body: body})
}

// Requests returns a copy of the received requests.
func (s *SimServer) Requests() []SimRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SimRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls is the number of requests received.
func (s *SimServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *SimServer) handle(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	req := SimRequest{Path: r.URL.Path, Authorization: r.Header.Get("Authorization")}
	_ = json.Unmarshal(data, &req)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	reply := SimReply{Status: http.StatusOK, Body: `{"entity_updates": []}`}
	if len(s.replies) > 0 {
		reply = s.replies[0]
		if len(s.replies) > 1 {
			s.replies = s.replies[1:]
		}
	}
	s.mu.Unlock()

	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	_, _ = io.WriteString(w, reply.Body)
}
