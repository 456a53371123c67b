package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProbe_Online(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "healthy endpoint", status: http.StatusOK, want: true},
		{name: "error status still means reachable", status: http.StatusInternalServerError, want: true},
		{name: "not found still means reachable", status: http.StatusNotFound, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodHead {
					t.Errorf("method = %s, want HEAD", r.Method)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			probe := NewHTTPProbe(server.URL, 2*time.Second)
			if got := probe.Online(context.Background()); got != tt.want {
				t.Errorf("Online() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPProbe_Offline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	probe := NewHTTPProbe(server.URL, 2*time.Second)
	if probe.Online(context.Background()) {
		t.Error("Online() = true for unreachable endpoint, want false")
	}
}
