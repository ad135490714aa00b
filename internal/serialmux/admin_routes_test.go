package serialmux

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest creates a request that appears to come from localhost so
// tsweb's debug access check lets it through.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	port := NewScriptedPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	tests := []struct {
		name       string
		method     string
		form       url.Values
		wantStatus int
		wantBody   string
	}{
		{name: "valid", method: http.MethodPost, form: url.Values{"command": {"Z"}}, wantStatus: http.StatusOK, wantBody: `"Z"`},
		{name: "empty", method: http.MethodPost, form: url.Values{"command": {"  "}}, wantStatus: http.StatusBadRequest, wantBody: "Missing command"},
		{name: "missing", method: http.MethodPost, form: url.Values{}, wantStatus: http.StatusBadRequest, wantBody: "Missing command"},
		{name: "wrong method", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed, wantBody: "Method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.form != nil {
				body = strings.NewReader(tt.form.Encode())
			}
			req := localHostRequest(tt.method, "/debug/send-command-api", body)
			if tt.form != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			w := httptest.NewRecorder()
			httpMux.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
	assert.Equal(t, "Z\n", string(port.Written()))
}

func TestAttachAdminRoutes_SendCommandWriteFailure(t *testing.T) {
	port := NewScriptedPort()
	port.WriteError = io.ErrClosedPipe
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader("command=Z"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAttachAdminRoutes_SerialStats(t *testing.T) {
	mux := NewSerialMux(NewScriptedPort())
	mux.Subscribe()
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/serial-stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Subscribers)
}

func TestAttachAdminRoutes_TailMethodNotAllowed(t *testing.T) {
	mux := NewSerialMux(NewScriptedPort())
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, localHostRequest(http.MethodPost, "/debug/tail", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAttachAdminRoutes_TailStreamsLines(t *testing.T) {
	mux := NewSerialMux(NewScriptedPort())
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/debug/tail")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	ping, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", ping)
	_, _ = reader.ReadString('\n')

	// The handler subscribed before sending the ping.
	mux.broadcast("12.5,347.25,40121")

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "data: 12.5,347.25,40121\n", line)
}
