package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestResendSenderSuccess(t *testing.T) {
	var got resendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer re_test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	s := NewResendSender("re_test", srv.URL+"/", time.Second)
	id, err := s.Send(context.Background(), Message{
		From:    "StatOracle <noreply@statoracle.com>",
		To:      "coach@example.com",
		Subject: "Hi",
		HTML:    "<p>hi</p>",
		ReplyTo: "team@statoracle.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg_123" {
		t.Errorf("expected provider id msg_123, got %q", id)
	}
	if len(got.To) != 1 || got.To[0] != "coach@example.com" {
		t.Errorf("unexpected to: %v", got.To)
	}
	if got.ReplyTo != "team@statoracle.com" {
		t.Errorf("unexpected reply_to: %q", got.ReplyTo)
	}
}

func TestResendSenderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"name":"validation_error","message":"Invalid to field"}`))
	}))
	defer srv.Close()

	s := NewResendSender("re_test", srv.URL, time.Second)
	_, err := s.Send(context.Background(), Message{To: "bad", Subject: "x", HTML: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Invalid to field") {
		t.Errorf("error should carry provider reason, got %v", err)
	}
}

func TestSendersRequireRecipient(t *testing.T) {
	senders := []Sender{
		NewResendSender("k", "http://127.0.0.1:1", time.Second),
		&LogSender{Logger: zap.NewNop()},
	}
	for _, s := range senders {
		if _, err := s.Send(context.Background(), Message{}); err != ErrNoRecipient {
			t.Errorf("%T: expected ErrNoRecipient, got %v", s, err)
		}
	}
}
