package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSE(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		data, _ := json.Marshal(StreamChunk{Choices: []Choice{{Text: c}}})
		fmt.Fprintf(w, "data: %s\n\n", data)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestDoCompletion_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method, "HTTP method")
		assert.Equal(t, "/v1/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"), "Content-Type header")
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Content-Encoding"))

		var req CompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream, "Stream should be false")
		assert.Equal(t, "<<<<<<< current", req.Prompt, "no HTML escaping")

		json.NewEncoder(w).Encode(CompletionResponse{
			ID:      "test-id",
			Model:   req.Model,
			Choices: []Choice{{Text: "resolved", FinishReason: "stop"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "")
	client.APIKey = "secret"

	resp, err := client.DoCompletion(context.Background(), &CompletionRequest{Model: "m", Prompt: "<<<<<<< current"})
	require.NoError(t, err)
	assert.Equal(t, "test-id", resp.ID)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "resolved", resp.Choices[0].Text)
}

func TestDoCompletion_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").DoCompletion(context.Background(), &CompletionRequest{Model: "m"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestDoCompletion_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").DoCompletion(context.Background(), &CompletionRequest{})
	assert.ErrorContains(t, err, "failed to decode response")
}

func TestDoCompletion_CustomPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/complete", r.URL.Path)
		json.NewEncoder(w).Encode(CompletionResponse{})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "/api/complete").DoCompletion(context.Background(), &CompletionRequest{})
	assert.NoError(t, err)
}

func TestDoCompletion_Brotli(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "br", r.Header.Get("Content-Encoding"))

		compressed, _ := io.ReadAll(r.Body)
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
		require.NoError(t, err)

		var req CompletionRequest
		require.NoError(t, json.Unmarshal(decompressed, &req))
		assert.Equal(t, "compressed prompt", req.Prompt)

		json.NewEncoder(w).Encode(CompletionResponse{Choices: []Choice{{Text: "ok"}}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	client.Compress = true
	resp, err := client.DoCompletion(context.Background(), &CompletionRequest{Prompt: "compressed prompt"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Text)
}

func TestDoStreamingCompletion_Basic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		var req CompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.True(t, req.Stream, "Stream should be true")
		writeSSE(w, "line1\n", "line2")
	}))
	defer server.Close()

	result, err := NewClient(server.URL, "").DoStreamingCompletion(context.Background(), &CompletionRequest{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", result.Text)
	assert.False(t, result.StoppedEarly)
}

func TestDoStreamingCompletion_MaxLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "a\n", "b\n", "c\n", "d\n")
	}))
	defer server.Close()

	result, err := NewClient(server.URL, "").DoStreamingCompletion(context.Background(), &CompletionRequest{}, 2)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", result.Text)
	assert.True(t, result.StoppedEarly)
}

func TestDoStreamingCompletion_Cancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, "").DoStreamingCompletion(ctx, &CompletionRequest{}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadStream_SkipsNoise(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"event: ping",
		"data: {not json}",
		`data: {"choices":[{"text":"ok","finish_reason":"stop"}]}`,
		"data: [DONE]",
		`data: {"choices":[{"text":"ignored"}]}`,
	}, "\n")

	result, err := readStreamWithLineLimit(strings.NewReader(stream), 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, "stop", result.FinishReason)
}
