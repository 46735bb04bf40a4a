// Package mockazure hosts in-process stand-ins for the two external
// services scrubgate talks to: the Language PII endpoint and the agents
// service. Tests and offline development point real clients at these.
package mockazure

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"
)

// Entity is a scripted detection the language server should report.
// Offsets are computed by the server from the first occurrence of Text.
type Entity struct {
	Text        string
	Category    string
	Subcategory string
	Confidence  float64
}

// LanguageServer mimics the PII recognition endpoint.
type LanguageServer struct {
	// Entities returns the scripted detections for a document text.
	Entities func(text string) []Entity
	// FailStatus, when non-zero, makes every call fail with that HTTP status.
	FailStatus int
	FailCode   string
	// RejectDomain simulates an endpoint without PHI-domain support.
	RejectDomain bool
}

func (s *LanguageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, ":analyze-text") {
		http.NotFound(w, r)
		return
	}
	if s.FailStatus != 0 {
		writeError(w, s.FailStatus, s.FailCode, "scripted failure")
		return
	}

	var req struct {
		AnalysisInput struct {
			Documents []struct {
				ID   string `json:"id"`
				Text string `json:"text"`
			} `json:"documents"`
		} `json:"analysisInput"`
		Parameters struct {
			Domain string `json:"domain"`
		} `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.AnalysisInput.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "bad analyze request")
		return
	}
	if s.RejectDomain && req.Parameters.Domain != "" {
		writeError(w, http.StatusBadRequest, "InvalidParameterValue", "parameter domain is not supported by this endpoint")
		return
	}

	text := req.AnalysisInput.Documents[0].Text
	type wireEntity struct {
		Text            string  `json:"text"`
		Category        string  `json:"category"`
		Subcategory     string  `json:"subcategory,omitempty"`
		Offset          int     `json:"offset"`
		Length          int     `json:"length"`
		ConfidenceScore float64 `json:"confidenceScore"`
	}
	var entities []wireEntity
	if s.Entities != nil {
		for _, e := range s.Entities(text) {
			byteOff := strings.Index(text, e.Text)
			if byteOff < 0 {
				continue
			}
			// The real service reports code points; so does the mock.
			entities = append(entities, wireEntity{
				Text:            e.Text,
				Category:        e.Category,
				Subcategory:     e.Subcategory,
				Offset:          utf8.RuneCountInString(text[:byteOff]),
				Length:          utf8.RuneCountInString(e.Text),
				ConfidenceScore: e.Confidence,
			})
		}
	}

	resp := map[string]any{
		"kind": "PiiEntityRecognitionResults",
		"results": map[string]any{
			"documents": []map[string]any{
				{"id": "1", "entities": entities},
			},
			"errors": []any{},
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// Annotation is a scripted citation annotation on the agent answer.
type Annotation struct {
	Marker     string // inline marker text, e.g. "【1†source】"
	URL        string
	Title      string
	StartIndex int
}

// AgentsServer mimics the agents service: assistants, threads, messages,
// runs. Runs progress queued -> in_progress -> FinalStatus, advancing one
// step per poll.
type AgentsServer struct {
	Answer      string
	Annotations []Annotation
	FinalStatus string // defaults to "completed"
	// ExtraPolls holds a run in_progress for that many additional polls.
	ExtraPolls int

	mu            sync.Mutex
	agents        map[string]bool
	threads       map[string]bool
	messages      map[string][]string
	runs          map[string]*runState
	agentsCreated int
	threadSeq     int
	runSeq        int
	msgSeq        int
}

type runState struct {
	threadID string
	polls    int
}

// AgentsCreated reports how many assistants were created.
func (s *AgentsServer) AgentsCreated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentsCreated
}

// Messages returns the user messages submitted to a thread.
func (s *AgentsServer) Messages(threadID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages[threadID]))
	copy(out, s.messages[threadID])
	return out
}

// SeedThread registers an existing thread id.
func (s *AgentsServer) SeedThread(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.threads[id] = true
}

func (s *AgentsServer) init() {
	if s.agents == nil {
		s.agents = map[string]bool{}
		s.threads = map[string]bool{}
		s.messages = map[string][]string{}
		s.runs = map[string]*runState{}
	}
}

func (s *AgentsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	path := strings.TrimSuffix(r.URL.Path, "/")
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")

	switch {
	case r.Method == http.MethodPost && path == "/assistants":
		s.agentsCreated++
		id := fmt.Sprintf("asst_%d", s.agentsCreated)
		s.agents[id] = true
		writeJSON(w, http.StatusOK, map[string]any{"id": id})

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "assistants":
		if !s.agents[parts[1]] {
			writeError(w, http.StatusNotFound, "not_found", "assistant not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": parts[1]})

	case r.Method == http.MethodPost && path == "/threads":
		s.threadSeq++
		id := fmt.Sprintf("thread_%d", s.threadSeq)
		s.threads[id] = true
		writeJSON(w, http.StatusOK, map[string]any{"id": id})

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "threads":
		if !s.threads[parts[1]] {
			writeError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": parts[1]})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "threads" && parts[2] == "messages":
		threadID := parts[1]
		if !s.threads[threadID] {
			writeError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		var req struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.messages[threadID] = append(s.messages[threadID], req.Content)
		s.msgSeq++
		writeJSON(w, http.StatusOK, map[string]any{"id": fmt.Sprintf("msg_%d", s.msgSeq)})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "threads" && parts[2] == "runs":
		threadID := parts[1]
		if !s.threads[threadID] {
			writeError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		s.runSeq++
		id := fmt.Sprintf("run_%d", s.runSeq)
		s.runs[id] = &runState{threadID: threadID}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "thread_id": threadID, "status": "queued"})

	case r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "threads" && parts[2] == "runs":
		run, ok := s.runs[parts[3]]
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		run.polls++
		status := "in_progress"
		if run.polls > 1+s.ExtraPolls {
			status = s.FinalStatus
			if status == "" {
				status = "completed"
			}
		}
		body := map[string]any{"id": parts[3], "thread_id": run.threadID, "status": status}
		if status == "failed" {
			body["last_error"] = map[string]any{"code": "server_error", "message": "scripted run failure"}
		}
		writeJSON(w, http.StatusOK, body)

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "threads" && parts[2] == "messages":
		writeJSON(w, http.StatusOK, s.assistantMessageList())

	default:
		http.NotFound(w, r)
	}
}

func (s *AgentsServer) assistantMessageList() map[string]any {
	annotations := make([]map[string]any, 0, len(s.Annotations))
	for _, a := range s.Annotations {
		annotations = append(annotations, map[string]any{
			"type":        "url_citation",
			"text":        a.Marker,
			"start_index": a.StartIndex,
			"end_index":   a.StartIndex + utf8.RuneCountInString(a.Marker),
			"url_citation": map[string]any{
				"url":   a.URL,
				"title": a.Title,
			},
		})
	}
	return map[string]any{
		"data": []map[string]any{
			{
				"id":   "msg_assistant",
				"role": "assistant",
				"content": []map[string]any{
					{
						"type": "text",
						"text": map[string]any{
							"value":       s.Answer,
							"annotations": annotations,
						},
					},
				},
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
