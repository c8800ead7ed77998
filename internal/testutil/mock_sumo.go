// Package testutil provides a scriptable mock of the Sumo Logic API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Credential accepted by the mock server.
const (
	AccessID  = "suABCDEF"
	AccessKey = "mock-access-key"
)

// MockPDF is returned as the result of unscripted jobs.
var MockPDF = []byte("%PDF-1.4\n% mock dashboard export\n%%EOF\n")

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// JobScript drives the export job created for one dashboard.
type JobScript struct {
	// Statuses are returned by successive status checks; the last one repeats.
	// Empty means immediate Success.
	Statuses []string

	// Result is served by the result endpoint (default MockPDF).
	Result      []byte
	ContentType string

	// SubmitStatus, when non-zero, fails the submission with this HTTP status
	// and SubmitBody as the response body.
	SubmitStatus int
	SubmitBody   string

	// StatusFailure, when non-zero, fails every status check with this code.
	StatusFailure int
}

type mockJob struct {
	dashboardID string
	script      JobScript
	statusCalls int
	resultCalls int
}

// MockSumo is a configurable mock Sumo Logic server. Its API base is URL().
type MockSumo struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	scripts    map[string]JobScript
	jobs       map[string]*mockJob
	dashboards []map[string]string
	pageSize   int
	nextJob    int

	// Tracking
	RequestCount  int
	Submitted     []string
	LastSubmitted map[string]any
	LastHeader    http.Header
}

// NewMockSumo starts a mock server.
func NewMockSumo() *MockSumo {
	mock := &MockSumo{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		scripts:  make(map[string]JobScript),
		jobs:     make(map[string]*mockJob),
		pageSize: 2,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/collectors", mock.handleCollectors)
	mux.HandleFunc("POST /api/v2/dashboards/reportJobs", mock.handleSubmit)
	mux.HandleFunc("GET /api/v2/dashboards/reportJobs/{id}/status", mock.handleStatus)
	mux.HandleFunc("GET /api/v2/dashboards/reportJobs/{id}/result", mock.handleResult)
	mux.HandleFunc("GET /api/v2/dashboards", mock.handleList)
	mux.HandleFunc("GET /api/v2/dashboards/{id}", mock.handleDashboard)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		if user, pass, ok := r.BasicAuth(); !ok || user != AccessID || pass != AccessKey {
			writeJSON(w, http.StatusUnauthorized, `{"status":401,"code":"unauthorized","message":"Credential could not be verified."}`)
			return
		}

		mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the API base of the mock, without a trailing slash.
func (m *MockSumo) URL() string {
	return m.server.URL + "/api"
}

// Client returns an HTTP client wired to the mock server.
func (m *MockSumo) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockSumo) Close() {
	m.server.Close()
}

// SetHandler overrides the handler for an exact path.
func (m *MockSumo) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for an exact path.
func (m *MockSumo) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// Script sets the behaviour of the job created for dashboardID.
func (m *MockSumo) Script(dashboardID string, script JobScript) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[dashboardID] = script
}

// SetDashboards sets the catalogue served by the dashboards endpoints as
// id/title pairs.
func (m *MockSumo) SetDashboards(pairs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dashboards = nil
	for i := 0; i+1 < len(pairs); i += 2 {
		m.dashboards = append(m.dashboards, map[string]string{"id": pairs[i], "title": pairs[i+1]})
	}
}

// SubmittedDashboards returns dashboard ids in submission order.
func (m *MockSumo) SubmittedDashboards() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Submitted...)
}

// LastSubmission returns the decoded body of the last job submission.
func (m *MockSumo) LastSubmission() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastSubmitted
}

// StatusCalls returns how many status checks the job of dashboardID received.
func (m *MockSumo) StatusCalls(dashboardID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, job := range m.jobs {
		if job.dashboardID == dashboardID {
			total += job.statusCalls
		}
	}
	return total
}

// ResultCalls returns how many result downloads the job of dashboardID received.
func (m *MockSumo) ResultCalls(dashboardID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, job := range m.jobs {
		if job.dashboardID == dashboardID {
			total += job.resultCalls
		}
	}
	return total
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSumo) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func (m *MockSumo) handleCollectors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, `{"collectors":[]}`)
}

func (m *MockSumo) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"message":"malformed body"}`)
		return
	}
	template, _ := body["template"].(map[string]any)
	dashboardID, _ := template["id"].(string)

	m.mu.Lock()
	m.LastSubmitted = body
	m.Submitted = append(m.Submitted, dashboardID)
	script := m.scripts[dashboardID]
	if script.SubmitStatus != 0 {
		m.mu.Unlock()
		writeJSON(w, script.SubmitStatus, script.SubmitBody)
		return
	}
	m.nextJob++
	id := fmt.Sprintf("job-%s-%d", dashboardID, m.nextJob)
	m.jobs[id] = &mockJob{dashboardID: dashboardID, script: script}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"id":%q}`, id))
}

func (m *MockSumo) handleStatus(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	job, ok := m.jobs[r.PathValue("id")]
	if !ok {
		m.mu.Unlock()
		writeJSON(w, http.StatusNotFound, `{"message":"job not found"}`)
		return
	}
	job.statusCalls++
	if job.script.StatusFailure != 0 {
		m.mu.Unlock()
		writeJSON(w, job.script.StatusFailure, `{"message":"status unavailable"}`)
		return
	}
	status := "Success"
	if n := len(job.script.Statuses); n > 0 {
		idx := job.statusCalls - 1
		if idx >= n {
			idx = n - 1
		}
		status = job.script.Statuses[idx]
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"status":%q}`, status))
}

func (m *MockSumo) handleResult(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	job, ok := m.jobs[r.PathValue("id")]
	if !ok {
		m.mu.Unlock()
		writeJSON(w, http.StatusNotFound, `{"message":"job not found"}`)
		return
	}
	job.resultCalls++
	result := job.script.Result
	contentType := job.script.ContentType
	m.mu.Unlock()

	if result == nil {
		result = MockPDF
	}
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (m *MockSumo) handleList(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	all := m.dashboards
	size := m.pageSize
	m.mu.RUnlock()

	start := 0
	if token := r.URL.Query().Get("token"); token != "" {
		if _, err := fmt.Sscanf(token, "page-%d", &start); err != nil {
			writeJSON(w, http.StatusBadRequest, `{"message":"bad token"}`)
			return
		}
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	page := map[string]any{"dashboards": all[start:end]}
	if end < len(all) {
		page["next"] = fmt.Sprintf("page-%d", end)
	}
	data, _ := json.Marshal(page)
	writeJSON(w, http.StatusOK, string(data))
}

func (m *MockSumo) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.dashboards {
		if d["id"] == id {
			data, _ := json.Marshal(d)
			writeJSON(w, http.StatusOK, string(data))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, `{"message":"dashboard not found"}`)
}

// NewRedirectServer returns a server that redirects every request to target
// with the same path, as the global API does for regional credentials.
func NewRedirectServer(target string) *httptest.Server {
	target = strings.TrimSuffix(target, "/")
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target+r.URL.Path, http.StatusMovedPermanently)
	}))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
