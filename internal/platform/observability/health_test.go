package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func TestServer_Handler(t *testing.T) {
	logger := zerolog.Nop()
	api := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		pinger     Pinger
		path       string
		wantStatus int
	}{
		{name: "healthz", pinger: stubPinger{}, path: "/healthz", wantStatus: http.StatusOK},
		{name: "readyz ok", pinger: stubPinger{}, path: "/readyz", wantStatus: http.StatusOK},
		{name: "readyz db down", pinger: stubPinger{err: errors.New("refused")}, path: "/readyz", wantStatus: http.StatusServiceUnavailable},
		{name: "metrics", pinger: stubPinger{}, path: "/metrics", wantStatus: http.StatusOK},
		{name: "api mounted", pinger: stubPinger{}, path: "/api/v1/subjects/AAPL/scores", wantStatus: http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServerWithAPI(tt.pinger, 0, api, &logger)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestServer_HandlerWithoutAPI(t *testing.T) {
	logger := zerolog.Nop()
	srv := NewServer(stubPinger{}, 0, &logger)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invocations/x", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
