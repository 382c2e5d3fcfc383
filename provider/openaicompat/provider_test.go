package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	tenun "github.com/antaredja/tenun"
)

func TestGenerate(t *testing.T) {
	var gotBody chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "hello"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`)
	}))
	defer srv.Close()

	p := New(tenun.Config{"api_key": "sk-test", "base_url": srv.URL})
	resp, err := p.Generate(context.Background(), []tenun.ChatMessage{tenun.UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "hello" || resp.Model != "gpt-4o-mini" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Fatalf("request messages = %+v", gotBody.Messages)
	}
}

func TestGenerateSettingsOverride(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}}]}`)
	}))
	defer srv.Close()

	p := New(tenun.Config{"base_url": srv.URL, "model": "default-model"})
	settings := tenun.Config{
		"model":       "override-model",
		"temperature": 0.2,
		"max_tokens":  512,
		"top_p":       0.9,
	}
	if _, err := p.Generate(context.Background(), []tenun.ChatMessage{tenun.UserMessage("q")}, settings); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotBody.Model != "override-model" {
		t.Fatalf("model = %q", gotBody.Model)
	}
	if gotBody.Temperature == nil || *gotBody.Temperature != 0.2 {
		t.Fatalf("temperature = %v", gotBody.Temperature)
	}
	if gotBody.MaxTokens == nil || *gotBody.MaxTokens != 512 {
		t.Fatalf("max_tokens = %v", gotBody.MaxTokens)
	}
	if gotBody.TopP == nil || *gotBody.TopP != 0.9 {
		t.Fatalf("top_p = %v", gotBody.TopP)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": "rate limited"}`)
	}))
	defer srv.Close()

	p := New(tenun.Config{"base_url": srv.URL})
	_, err := p.Generate(context.Background(), []tenun.ChatMessage{tenun.UserMessage("q")}, nil)

	var httpErr *tenun.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *tenun.ErrHTTP, got %T: %v", err, err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Fatalf("status = %d", httpErr.Status)
	}
}

func TestGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !body.Stream {
			t.Error("stream flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"model\":\"gpt-4o-mini\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New(tenun.Config{"base_url": srv.URL})
	ch := make(chan string, 16)
	resp, err := p.GenerateStream(context.Background(), []tenun.ChatMessage{tenun.UserMessage("q")}, nil, ch)
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	var deltas []string
	for d := range ch {
		deltas = append(deltas, d)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Fatalf("deltas = %v", deltas)
	}
	if resp.Content != "Hello" || resp.Model != "gpt-4o-mini" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 2 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestGenerateStreamClosesChannelOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(tenun.Config{"base_url": srv.URL})
	ch := make(chan string)
	if _, err := p.GenerateStream(context.Background(), []tenun.ChatMessage{tenun.UserMessage("q")}, nil, ch); err == nil {
		t.Fatal("expected error")
	}
	if _, open := <-ch; open {
		t.Fatal("channel should be closed")
	}
}

func TestCountTokens(t *testing.T) {
	p := New(tenun.Config{})
	if n := p.CountTokens("12345678"); n != 2 {
		t.Fatalf("CountTokens = %d, want 2", n)
	}
}

func TestEmbedDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.Input) != 2 {
			t.Errorf("input = %v", body.Input)
		}
		// Out-of-order response; index is authoritative.
		fmt.Fprint(w, `{"data": [
			{"index": 1, "embedding": [0.3, 0.4]},
			{"index": 0, "embedding": [0.1, 0.2]}
		]}`)
	}))
	defer srv.Close()

	e := NewEmbedding(tenun.Config{"base_url": srv.URL, "dimensions": 2})
	got, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}
	if got[0][0] != 0.1 || got[1][0] != 0.3 {
		t.Fatalf("embeddings = %v", got)
	}
	if e.Dimensions() != 2 {
		t.Fatalf("Dimensions = %d", e.Dimensions())
	}
}

func TestEmbedDocumentsCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"index": 0, "embedding": [0.1]}]}`)
	}))
	defer srv.Close()

	e := NewEmbedding(tenun.Config{"base_url": srv.URL})
	_, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})

	var llmErr *tenun.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *tenun.ErrLLM, got %T: %v", err, err)
	}
}
