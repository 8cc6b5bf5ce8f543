package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/platform/config"
)

func newTestWebhook(t *testing.T, handler http.HandlerFunc) *webhookProvider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := zerolog.Nop()
	cfg := &config.Config{
		GenerationWebhookURL:   srv.URL,
		GenerationWebhookToken: "secret",
		GenerationWebhookTTL:   5 * time.Second,
		RateLimitRPS:           100,
	}

	return NewWebhookProvider(cfg, &logger)
}

func TestWebhookProvider_Generate(t *testing.T) {
	var captured []byte

	p := newTestWebhook(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, contentTypeJSON, r.Header.Get(headerContentType))

		captured, _ = io.ReadAll(r.Body)

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"response":{"overallSummary":"Strong moat","factors":[]}}`))
	})

	req := GenerationRequest{
		Category:   domain.CategoryBusinessAndMoat,
		OutputKind: domain.OutputKindCategory,
		Input: InputDocument{
			Subject: SubjectInput{Key: "AAPL", Kind: "ticker", Name: "Apple Inc."},
			Factors: []FactorInput{{Key: "brand_strength", Title: "Brand", Description: "d"}},
		},
	}

	raw, err := p.Generate(context.Background(), req, "gpt-4o")

	require.NoError(t, err)
	assert.JSONEq(t, `{"overallSummary":"Strong moat","factors":[]}`, string(raw))

	assert.Equal(t, "BusinessAndMoat", gjson.GetBytes(captured, "reportType").String())
	assert.Equal(t, "gpt-4o", gjson.GetBytes(captured, "model").String())
	assert.Equal(t, "AAPL", gjson.GetBytes(captured, "input.subject.key").String())
	assert.Equal(t, "brand_strength", gjson.GetBytes(captured, "input.factors.0.factorAnalysisKey").String())
}

func TestWebhookProvider_UpstreamStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{name: "server error is retryable", status: http.StatusBadGateway, wantRetryable: true},
		{name: "throttled is retryable", status: http.StatusTooManyRequests, wantRetryable: true},
		{name: "bad request is fatal", status: http.StatusBadRequest, wantRetryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestWebhook(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			})

			_, err := p.Generate(context.Background(), testRequest(), "m")

			require.Error(t, err)

			var upstream *apperrors.UpstreamError
			require.True(t, errors.As(err, &upstream))
			assert.Equal(t, tt.status, upstream.Status)
			assert.Equal(t, "nope", upstream.Message)
			assert.Equal(t, tt.wantRetryable, apperrors.IsRetryable(err))
		})
	}
}

func TestParseWebhookEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "object", body: `{"response":{"summary":"s"}}`, want: `{"summary":"s"}`},
		{name: "encoded string", body: `{"response":"{\"summary\":\"s\"}"}`, want: `{"summary":"s"}`},
		{name: "fenced string", body: "{\"response\":\"```json\\n{\\\"summary\\\":\\\"s\\\"}\\n```\"}", want: `{"summary":"s"}`},
		{name: "missing field", body: `{"result":{}}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
		{name: "array", body: `{"response":[1,2]}`, wantErr: true},
		{name: "plain text", body: `{"response":"sorry"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWebhookEnvelope([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrUpstream)
				assert.False(t, apperrors.IsRetryable(err))

				return
			}

			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
