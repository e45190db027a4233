package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docforge/pkg/models"
)

func TestHTTPAgentClient(t *testing.T) {
	ctx := context.Background()

	t.Run("posts resume request", func(t *testing.T) {
		var got resumeRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/resume", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		client := NewHTTPAgentClient(server.URL, time.Second, 0)
		err := client.ResumeWorkflow(ctx, "wf-1", 5, []byte(`{"k":"v"}`))
		assert.NoError(t, err)
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, 5, got.FromStep)
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewHTTPAgentClient(server.URL, time.Second, 3)
		err := client.ResumeWorkflow(ctx, "wf-1", 1, nil)
		assert.NoError(t, err)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("exhausted retries surface service unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewHTTPAgentClient(server.URL, time.Second, 1)
		err := client.ResumeWorkflow(ctx, "wf-1", 1, nil)
		assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		client := NewHTTPAgentClient("http://127.0.0.1:1", time.Second, 5)
		err := client.ResumeWorkflow(cancelled, "wf-1", 1, nil)
		assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	})
}
