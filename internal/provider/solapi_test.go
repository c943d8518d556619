package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"smscast/internal/auth"
	"smscast/pkg/logx"
)

func TestSolapiSendSuccess(t *testing.T) {
	t.Parallel()
	var gotAuth string
	var gotBody solapiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "M-1", "statusCode": "2000"})
	}))
	defer srv.Close()

	p := NewSolapi(logx.Nop(), auth.NewSigner("key", "secret"), srv.URL, srv.Client())
	res, err := p.Send(context.Background(), Message{To: "01012345678", From: "0299998888", Text: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != "M-1" {
		t.Fatalf("MessageID = %q", res.MessageID)
	}
	if gotBody.Message.To != "01012345678" || gotBody.Message.From != "0299998888" || gotBody.Message.Text != "hello" {
		t.Fatalf("request body = %+v", gotBody)
	}
	if !strings.HasPrefix(gotAuth, "HMAC-SHA256 apiKey=key, date=") {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if !strings.Contains(gotAuth, ", salt=") || !strings.Contains(gotAuth, ", signature=") {
		t.Fatalf("Authorization missing salt/signature: %q", gotAuth)
	}
}

func TestSolapiSendProviderError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"errorMessage": "invalid recipient"})
	}))
	defer srv.Close()

	p := NewSolapi(logx.Nop(), auth.NewSigner("key", "secret"), srv.URL, srv.Client())
	_, err := p.Send(context.Background(), Message{To: "123", From: "456", Text: "x"})
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("err = %v, want *SendError", err)
	}
	if sendErr.StatusCode != http.StatusBadRequest || sendErr.Message != "invalid recipient" {
		t.Fatalf("SendError = %+v", sendErr)
	}
	if sendErr.Error() != "invalid recipient" {
		t.Fatalf("Error() = %q, want provider message verbatim", sendErr.Error())
	}
}

func TestSolapiSendErrorWithoutBodyMessage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewSolapi(logx.Nop(), auth.NewSigner("key", "secret"), srv.URL, srv.Client())
	_, err := p.Send(context.Background(), Message{To: "123", From: "456", Text: "x"})
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("err = %v, want *SendError", err)
	}
	if !strings.Contains(sendErr.Error(), "500") {
		t.Fatalf("Error() = %q, want generic description with status", sendErr.Error())
	}
}

func TestSolapiSendMissingCredentials(t *testing.T) {
	t.Parallel()
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := NewSolapi(logx.Nop(), auth.NewSigner("", ""), srv.URL, srv.Client())
	if _, err := p.Send(context.Background(), Message{To: "1", From: "2", Text: "x"}); !errors.Is(err, auth.ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
	if called {
		t.Fatal("request was issued despite missing credentials")
	}
}
