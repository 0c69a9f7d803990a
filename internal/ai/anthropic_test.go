package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(url string) *AnthropicClient {
	return NewAnthropicClient(url, "test-key", "", "test-model", 0)
}

func TestComplete_SendsRequestAndParsesReply(t *testing.T) {
	var gotReq messagesReq
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"content":[{"type":"text","text":"the reply"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	reply, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "the reply" {
		t.Fatalf("unexpected reply: %q", reply)
	}

	if gotReq.Model != "test-model" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d", gotReq.MaxTokens)
	}
	if gotReq.Stream {
		t.Errorf("stream should be false")
	}
	if got := gotHeaders.Get("x-api-key"); got != "test-key" {
		t.Errorf("x-api-key = %q", got)
	}
	if got := gotHeaders.Get("anthropic-version"); got != "2023-06-01" {
		t.Errorf("anthropic-version = %q", got)
	}
}

func TestComplete_RequiresKeyAndModel(t *testing.T) {
	c := NewAnthropicClient("http://localhost:1", "", "", "m", 0)
	if _, err := c.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error without api key")
	}
	c = NewAnthropicClient("http://localhost:1", "k", "", "", 0)
	if _, err := c.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error without model")
	}
}

func TestComplete_StatusErrorDetail(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
		want string
	}{
		{"error message", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"Too many requests"}}`, "Too many requests"},
		{"details field", 502, `{"error":"Failed to reach Anthropic API","details":"dial tcp: timeout"}`, "dial tcp: timeout"},
		{"raw body", 500, "upstream exploded", "upstream exploded"},
		{"empty body", 503, "", "503"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestOpenStream_ReturnsBodyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messagesReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Errorf("stream should be true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"type":"content_block_delta","delta":{"text":"streamed"}}`+"\n")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	body, err := c.OpenStream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	d := &Decoder{}
	events := d.Feed(raw)
	if len(events) != 1 || events[0].Text != "streamed" {
		t.Fatalf("unexpected events: %#v", events)
	}
}

func TestOpenStream_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	body, err := c.OpenStream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil {
		body.Close()
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid x-api-key") {
		t.Fatalf("error %q missing upstream detail", err.Error())
	}
}
