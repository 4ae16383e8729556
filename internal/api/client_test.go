package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/duochat/duochat/internal/api"
)

func TestClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Fatalf("failed to decode credentials: %v", err)
		}
		if creds.Username != "alice" || creds.Password != "secret" {
			t.Errorf("credentials = %+v, want alice/secret", creds)
		}
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "tok-1"})
		json.NewEncoder(w).Encode(map[string]string{"id": "u1"})
	}))
	defer server.Close()

	client, err := api.New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	id, err := client.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if id != "u1" {
		t.Errorf("Login() id = %q, want %q", id, "u1")
	}
}

func TestClient_Login_BadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := api.New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = client.Login(context.Background(), "alice", "wrong")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("Login() error = %v, want *api.Error", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("error status = %d, want 401", apiErr.Status)
	}
	if apiErr.Message != "Incorrect username or password" {
		t.Errorf("error message = %q, want %q", apiErr.Message, "Incorrect username or password")
	}
}

func TestClient_Register_DuplicateUsername(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client, err := api.New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = client.Register(context.Background(), "alice", "secret")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("Register() error = %v, want *api.Error", err)
	}
	if apiErr.Message != "Username already exists" {
		t.Errorf("error message = %q, want %q", apiErr.Message, "Username already exists")
	}
}

func TestClient_CookiePersistsAcrossRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "token", Value: "tok-1"})
			json.NewEncoder(w).Encode(map[string]string{"id": "u1"})
		case "/profile":
			cookie, err := r.Cookie("token")
			if err != nil || cookie.Value != "tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"userId": "u1", "username": "alice"})
		}
	}))
	defer server.Close()

	client, err := api.New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := client.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	userID, username, err := client.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if userID != "u1" || username != "alice" {
		t.Errorf("Profile() = %q/%q, want u1/alice", userID, username)
	}
}

func TestClient_Profile_Unauthenticated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := api.New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, _, err = client.Profile(context.Background())
	if !errors.Is(err, api.ErrUnauthenticated) {
		t.Errorf("Profile() error = %v, want ErrUnauthenticated", err)
	}
}

func TestClient_People(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/people" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"_id":"u1","username":"alice"},{"_id":"u2","username":"bob"}]`))
	}))
	defer server.Close()

	client, err := api.New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	people, err := client.People(context.Background())
	if err != nil {
		t.Fatalf("People() error = %v", err)
	}
	if len(people) != 2 {
		t.Fatalf("People() returned %d entries, want 2", len(people))
	}
	if people[0].ID != "u1" || people[0].Username != "alice" {
		t.Errorf("People()[0] = %+v, want {u1 alice}", people[0])
	}
}

func TestClient_Messages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/u2" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"_id":"m1","sender":"u2","recipient":"u1","text":"hi"}]`))
	}))
	defer server.Close()

	client, err := api.New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	msgs, err := client.Messages(context.Background(), "u2")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Messages() returned %d entries, want 1", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Text != "hi" {
		t.Errorf("Messages()[0] = %+v, want id m1 text hi", msgs[0])
	}
}

func TestClient_FetchFailureSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := api.New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := client.People(context.Background()); err == nil {
		t.Error("People() expected error on server failure")
	}
	if _, err := client.Messages(context.Background(), "u2"); err == nil {
		t.Error("Messages() expected error on server failure")
	}
}
