package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/palomarmail/palomar/delivery"
	"github.com/palomarmail/palomar/mail"
	"github.com/palomarmail/palomar/platform"
)

const testAPIKey = "test-api-key-123"

type apiTest struct {
	platform *platform.Platform
	router   *mux.Router
}

// newAPITest seeds mx1 -- mx2 plus an isolated island server, with alice on
// mx1, bob on mx2 and carol on island.
func newAPITest(t *testing.T) *apiTest {
	t.Helper()

	p := platform.New(mail.TierMedium)
	for _, id := range []string{"mx1", "mx2", "island"} {
		require.NoError(t, p.RegisterServer(id))
	}
	require.NoError(t, p.LinkServers("mx1", "mx2"))
	require.NoError(t, p.RegisterAccount("alice@palomar.test", "mx1"))
	require.NoError(t, p.RegisterAccount("bob@palomar.test", "mx2"))
	require.NoError(t, p.RegisterAccount("carol@palomar.test", "island"))

	server := New(p, ServerOptions{Addr: ":0", APIKey: testAPIKey})
	return &apiTest{platform: p, router: server.setupRoutes()}
}

func (a *apiTest) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), target))
}

func (a *apiTest) sendMessage(t *testing.T, from, to, subject, priority string) delivery.Result {
	t.Helper()
	rr := a.do(t, "POST", "/api/v1/messages",
		`{"from":"`+from+`","to":"`+to+`","subject":"`+subject+`","body":"b","priority":"`+priority+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var result delivery.Result
	decodeBody(t, rr, &result)
	return result
}

func TestAuth(t *testing.T) {
	a := newAPITest(t)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "missing header", authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", authHeader: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", authHeader: "Bearer wrong-key", wantStatus: http.StatusForbidden},
		{name: "valid key", authHeader: "Bearer " + testAPIKey, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/healthz", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			a.router.ServeHTTP(rr, req)
			require.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestNoAPIKeyDisablesAuth(t *testing.T) {
	p := platform.New(mail.TierMedium)
	server := New(p, ServerOptions{Addr: ":0"})
	router := server.setupRoutes()

	req := httptest.NewRequest("GET", "/api/v1/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestIDHeader(t *testing.T) {
	a := newAPITest(t)
	rr := a.do(t, "GET", "/api/v1/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestAccountLifecycle(t *testing.T) {
	a := newAPITest(t)

	rr := a.do(t, "POST", "/api/v1/accounts", `{"address":"dave@palomar.test","server":"mx1"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(t, "POST", "/api/v1/accounts", `{"address":"dave@palomar.test","server":"mx2"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = a.do(t, "GET", "/api/v1/accounts", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Accounts []platform.AccountInfo `json:"accounts"`
		Total    int                    `json:"total"`
	}
	decodeBody(t, rr, &list)
	require.Equal(t, 4, list.Total)

	rr = a.do(t, "DELETE", "/api/v1/accounts/dave@palomar.test", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(t, "DELETE", "/api/v1/accounts/dave@palomar.test", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateAccountValidation(t *testing.T) {
	a := newAPITest(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "missing server", body: `{"address":"x@y.test"}`, wantStatus: http.StatusBadRequest},
		{name: "missing address", body: `{"server":"mx1"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown server", body: `{"address":"x@y.test","server":"nowhere"}`, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := a.do(t, "POST", "/api/v1/accounts", tt.body)
			require.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestSendMessageFlow(t *testing.T) {
	a := newAPITest(t)

	result := a.sendMessage(t, "alice@palomar.test", "bob@palomar.test", "deploy done", "high")
	require.Equal(t, []string{"mx1", "mx2"}, result.Route)
	require.Equal(t, mail.TierHigh, result.Tier)
	require.True(t, result.Queued)

	rr := a.do(t, "GET", "/api/v1/accounts/bob@palomar.test/messages?folder=INBOX", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var inbox struct {
		Messages []*mail.Message `json:"messages"`
		Count    int             `json:"count"`
	}
	decodeBody(t, rr, &inbox)
	require.Equal(t, 1, inbox.Count)
	require.Equal(t, result.MessageID, inbox.Messages[0].ID)

	// The sender's Sent copy is visible through the same listing endpoint.
	rr = a.do(t, "GET", "/api/v1/accounts/alice@palomar.test/messages?folder=Sent", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &inbox)
	require.Equal(t, 1, inbox.Count)

	rr = a.do(t, "GET", "/api/v1/queue", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats struct {
		Total int `json:"total"`
		High  int `json:"high"`
	}
	decodeBody(t, rr, &stats)
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.High)

	rr = a.do(t, "POST", "/api/v1/queue/dispatch", `{"max":5}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var dispatch struct {
		Dispatched int `json:"dispatched"`
	}
	decodeBody(t, rr, &dispatch)
	require.Equal(t, 1, dispatch.Dispatched)
}

func TestSendMessageErrors(t *testing.T) {
	a := newAPITest(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "unknown recipient",
			body:       `{"from":"alice@palomar.test","to":"ghost@palomar.test","subject":"s","body":"b"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unroutable recipient",
			body:       `{"from":"alice@palomar.test","to":"carol@palomar.test","subject":"s","body":"b"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{name: "invalid json", body: `not json`, wantStatus: http.StatusBadRequest},
		{name: "missing from", body: `{"to":"bob@palomar.test"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := a.do(t, "POST", "/api/v1/messages", tt.body)
			require.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestSendRaw(t *testing.T) {
	a := newAPITest(t)
	raw := strings.Join([]string{
		"From: outside@elsewhere.example",
		"To: bob@palomar.test",
		"Subject: wire format",
		"X-Priority: 1",
		"",
		"raw body",
	}, "\r\n")

	rr := a.do(t, "POST", "/api/v1/messages/raw", raw)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var result delivery.Result
	decodeBody(t, rr, &result)
	require.Equal(t, mail.TierHigh, result.Tier)
	require.Equal(t, []string{"mx2"}, result.Route)
}

func TestSendRawRecipientOverride(t *testing.T) {
	a := newAPITest(t)
	raw := "From: x@y.example\r\nTo: elsewhere@other.example\r\nSubject: s\r\n\r\nb"

	rr := a.do(t, "POST", "/api/v1/messages/raw", raw, "X-Recipient", "bob@palomar.test")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	list := a.do(t, "GET", "/api/v1/accounts/bob@palomar.test/messages", "")
	var inbox struct {
		Count int `json:"count"`
	}
	decodeBody(t, list, &inbox)
	require.Equal(t, 1, inbox.Count)
}

func TestSendRawErrors(t *testing.T) {
	a := newAPITest(t)

	rr := a.do(t, "POST", "/api/v1/messages/raw", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, "POST", "/api/v1/messages/raw", "this has no header colon\r\n\r\nbody")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetMessageETag(t *testing.T) {
	a := newAPITest(t)
	result := a.sendMessage(t, "alice@palomar.test", "bob@palomar.test", "cached", "medium")

	rr := a.do(t, "GET", "/api/v1/accounts/bob@palomar.test/messages/"+result.MessageID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rr = a.do(t, "GET", "/api/v1/accounts/bob@palomar.test/messages/"+result.MessageID, "",
		"If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, rr.Code)
	require.Empty(t, rr.Body.String())

	rr = a.do(t, "GET", "/api/v1/accounts/bob@palomar.test/messages/no-such-id", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMoveMessage(t *testing.T) {
	a := newAPITest(t)
	result := a.sendMessage(t, "alice@palomar.test", "bob@palomar.test", "file me", "medium")

	rr := a.do(t, "POST", "/api/v1/accounts/bob@palomar.test/messages/"+result.MessageID+"/move",
		`{"from":"INBOX","to":"Archive"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	list := a.do(t, "GET", "/api/v1/accounts/bob@palomar.test/messages?folder=Archive", "")
	var archive struct {
		Count int `json:"count"`
	}
	decodeBody(t, list, &archive)
	require.Equal(t, 1, archive.Count)

	rr = a.do(t, "POST", "/api/v1/accounts/bob@palomar.test/messages/no-such-id/move",
		`{"from":"INBOX","to":"Archive"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, "POST", "/api/v1/accounts/bob@palomar.test/messages/"+result.MessageID+"/move",
		`{"from":"Archive"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSearchMessages(t *testing.T) {
	a := newAPITest(t)
	a.sendMessage(t, "alice@palomar.test", "bob@palomar.test", "Quarterly Report", "medium")
	a.sendMessage(t, "alice@palomar.test", "bob@palomar.test", "lunch?", "low")

	rr := a.do(t, "GET", "/api/v1/accounts/bob@palomar.test/search?q=REPORT", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var results struct {
		Results []platform.SearchResult `json:"results"`
		Count   int                     `json:"count"`
	}
	decodeBody(t, rr, &results)
	require.Equal(t, 1, results.Count)
	require.Equal(t, "Quarterly Report", results.Results[0].Message.Subject)
}

func TestFolderEndpoints(t *testing.T) {
	a := newAPITest(t)

	rr := a.do(t, "POST", "/api/v1/accounts/alice@palomar.test/folders", `{"parent":"","name":"Projects"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(t, "POST", "/api/v1/accounts/alice@palomar.test/folders", `{"parent":"","name":"Projects"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = a.do(t, "POST", "/api/v1/accounts/alice@palomar.test/folders", `{"parent":"NoSuch","name":"x"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, "POST", "/api/v1/accounts/alice@palomar.test/folders", `{"parent":""}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, "GET", "/api/v1/accounts/alice@palomar.test/folders", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"Projects"`)
}

func TestSieveEndpoint(t *testing.T) {
	a := newAPITest(t)

	rr := a.do(t, "PUT", "/api/v1/accounts/bob@palomar.test/sieve",
		`require "fileinto";
if header :contains "subject" "invoice" { fileinto "Receipts"; }`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// The installed script reroutes matching deliveries.
	result := a.sendMessage(t, "alice@palomar.test", "bob@palomar.test", "invoice #7", "medium")
	require.Equal(t, "Receipts", result.Folder)

	rr = a.do(t, "PUT", "/api/v1/accounts/bob@palomar.test/sieve", `not a sieve script {{{`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, "PUT", "/api/v1/accounts/ghost@palomar.test/sieve", `discard;`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTopologyEndpoints(t *testing.T) {
	a := newAPITest(t)

	rr := a.do(t, "POST", "/api/v1/topology/servers", `{"id":"mx3"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(t, "POST", "/api/v1/topology/servers", `{"id":"mx3"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = a.do(t, "POST", "/api/v1/topology/links", `{"a":"mx2","b":"mx3"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(t, "POST", "/api/v1/topology/links", `{"a":"mx2","b":"nowhere"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, "GET", "/api/v1/topology/servers", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var servers struct {
		Servers []platform.ServerInfo `json:"servers"`
		Count   int                   `json:"count"`
	}
	decodeBody(t, rr, &servers)
	require.Equal(t, 4, servers.Count)

	rr = a.do(t, "GET", "/api/v1/topology/path?from=mx1&to=mx3", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var path struct {
		Path []string `json:"path"`
		Hops int      `json:"hops"`
	}
	decodeBody(t, rr, &path)
	require.Equal(t, []string{"mx1", "mx2", "mx3"}, path.Path)
	require.Equal(t, 2, path.Hops)

	rr = a.do(t, "GET", "/api/v1/topology/path?from=mx1&to=island", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = a.do(t, "GET", "/api/v1/topology/path?from=mx1&to=nowhere", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, "GET", "/api/v1/topology/path?from=mx1", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, "GET", "/api/v1/topology/explore?from=mx1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var explore struct {
		Servers []string `json:"servers"`
	}
	decodeBody(t, rr, &explore)
	require.Equal(t, []string{"mx1", "mx2", "mx3"}, explore.Servers)

	rr = a.do(t, "GET", "/api/v1/topology/explore?from=nowhere", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFilterEndpoints(t *testing.T) {
	a := newAPITest(t)

	rr := a.do(t, "POST", "/api/v1/filters",
		`{"name":"urgent","field":"subject","contains":"urgent","action":"set_tier","tier":"high"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = a.do(t, "POST", "/api/v1/filters",
		`{"name":"urgent","field":"subject","contains":"x","action":"set_tier","tier":"low"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = a.do(t, "POST", "/api/v1/filters",
		`{"name":"bad","field":"subject","contains":"x","action":"explode"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, "GET", "/api/v1/filters", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var filters struct {
		Count int `json:"count"`
	}
	decodeBody(t, rr, &filters)
	require.Equal(t, 1, filters.Count)

	// The registered rule reclassifies matching traffic.
	result := a.sendMessage(t, "alice@palomar.test", "bob@palomar.test", "urgent: disk full", "low")
	require.Equal(t, mail.TierHigh, result.Tier)
}

func TestQueueDispatchDefaults(t *testing.T) {
	a := newAPITest(t)
	for i := 0; i < 3; i++ {
		a.sendMessage(t, "alice@palomar.test", "bob@palomar.test", "bulk", "high")
	}

	// No body falls back to the default batch size.
	rr := a.do(t, "POST", "/api/v1/queue/dispatch", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var dispatch struct {
		Dispatched int `json:"dispatched"`
	}
	decodeBody(t, rr, &dispatch)
	require.Equal(t, 3, dispatch.Dispatched)
}

func TestHealthz(t *testing.T) {
	a := newAPITest(t)
	rr := a.do(t, "GET", "/api/v1/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var health platform.HealthInfo
	decodeBody(t, rr, &health)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, 3, health.Servers)
	require.Equal(t, 3, health.Accounts)
}

// TestEndToEndProvisioning drives the whole platform lifecycle over HTTP
// starting from an empty platform: topology, accounts, send, inbox, queue.
func TestEndToEndProvisioning(t *testing.T) {
	p := platform.New(mail.TierMedium)
	server := New(p, ServerOptions{Addr: ":0", APIKey: testAPIKey})
	a := &apiTest{platform: p, router: server.setupRoutes()}

	for _, id := range []string{"alpha", "beta"} {
		rr := a.do(t, "POST", "/api/v1/topology/servers", `{"id":"`+id+`"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	rr := a.do(t, "POST", "/api/v1/topology/links", `{"a":"alpha","b":"beta"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(t, "POST", "/api/v1/accounts", `{"address":"sender@e2e.test","server":"alpha"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = a.do(t, "POST", "/api/v1/accounts", `{"address":"rcpt@e2e.test","server":"beta"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	result := a.sendMessage(t, "sender@e2e.test", "rcpt@e2e.test", "hello", "high")
	require.Equal(t, []string{"alpha", "beta"}, result.Route)
	require.True(t, result.Queued)

	rr = a.do(t, "GET", "/api/v1/accounts/rcpt@e2e.test/messages", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var inbox struct {
		Messages []*mail.Message `json:"messages"`
		Count    int             `json:"count"`
	}
	decodeBody(t, rr, &inbox)
	require.Equal(t, 1, inbox.Count)
	require.Equal(t, "hello", inbox.Messages[0].Subject)
	require.Equal(t, mail.TierHigh, inbox.Messages[0].Tier)

	rr = a.do(t, "GET", "/api/v1/accounts/sender@e2e.test/messages?folder=Sent", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sent struct {
		Count int `json:"count"`
	}
	decodeBody(t, rr, &sent)
	require.Equal(t, 1, sent.Count)

	rr = a.do(t, "GET", "/api/v1/queue", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats struct {
		Total int `json:"total"`
	}
	decodeBody(t, rr, &stats)
	require.Equal(t, 1, stats.Total)

	rr = a.do(t, "POST", "/api/v1/queue/dispatch", `{"max":5}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var dispatch struct {
		Dispatched int `json:"dispatched"`
	}
	decodeBody(t, rr, &dispatch)
	require.Equal(t, 1, dispatch.Dispatched)

	rr = a.do(t, "GET", "/api/v1/queue", "")
	decodeBody(t, rr, &stats)
	require.Equal(t, 0, stats.Total)
}
