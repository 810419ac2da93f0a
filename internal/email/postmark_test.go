package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/reunion/internal/model"
)

func TestNotifyRegistration(t *testing.T) {
	var received message
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", "organizer@example.com", WithEndpoint(server.URL))

	m := model.FamilyMember{Name: "Bruno <Madrigal>", Email: "bruno@example.com", Generation: 2, Attendees: 3}
	if err := client.NotifyRegistration(context.Background(), m); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "organizer@example.com" || received.ReplyTo != "bruno@example.com" {
		t.Errorf("To = %q, ReplyTo = %q", received.To, received.ReplyTo)
	}
	if received.Subject != "New reunion registration: Bruno <Madrigal>" {
		t.Errorf("Subject = %q", received.Subject)
	}
	if strings.Contains(received.HtmlBody, "<Madrigal>") {
		t.Error("html body does not escape the name")
	}
	if !strings.Contains(received.TextBody, "Attendees: 3") || !strings.Contains(received.TextBody, "Generation: 2") {
		t.Errorf("text body = %q", received.TextBody)
	}
}

func TestNotifyRegistrationAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"ErrorCode": 300, "Message": "Invalid 'To' address"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", "organizer@example.com", WithEndpoint(server.URL))

	err := client.NotifyRegistration(context.Background(), model.FamilyMember{Name: "Bruno"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Code != 300 {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestNotifyRegistrationNotConfigured(t *testing.T) {
	client := NewClient("", "noreply@example.com", "organizer@example.com")
	if client.Configured() {
		t.Fatal("expected unconfigured client")
	}
	if err := client.NotifyRegistration(context.Background(), model.FamilyMember{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
