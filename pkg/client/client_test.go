package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-rentreport/pkg/auth"
	"github.com/goliatone/go-rentreport/pkg/client"
)

func newClient(t *testing.T, service string, handler http.HandlerFunc) *client.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := client.New(service, server.URL+"/v1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestDo_SendsJSONWithBearerToken(t *testing.T) {
	c := newClient(t, "api", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rent-reports" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "r1", "status": body["status"]})
	})

	var out client.RentReport
	err := c.Do(context.Background(), client.Request{
		Method: http.MethodPost,
		Path:   "/rent-reports",
		Token:  "tok",
		Body:   map[string]any{"status": "Reported"},
	}, &out)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if out.ID != "r1" || out.Status != "Reported" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestDocuments_UploadStreamsMultipartContent(t *testing.T) {
	c := newClient(t, "documents", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("expected anonymous upload, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("field"); got != "idPhoto" {
			t.Errorf("unexpected field %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "id.png" || header.Header.Get("Content-Type") != "image/png" || string(data) != "png bytes" {
			t.Errorf("unexpected part %s %s %q", header.Filename, header.Header.Get("Content-Type"), data)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"key":"doc-1","size":9}`))
	})

	stored, err := client.NewDocuments(c).Upload(context.Background(), "", client.UploadFile{
		Field:       "idPhoto",
		Name:        "id.png",
		ContentType: "image/png",
		Content:     strings.NewReader("png bytes"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if diff := cmp.Diff(client.StoredDocument{Key: "doc-1", Size: 9}, stored); diff != "" {
		t.Fatalf("stored mismatch (-want +got):\n%s", diff)
	}
}

func TestDocuments_UploadRequiresKey(t *testing.T) {
	c := newClient(t, "documents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := client.NewDocuments(c).Upload(context.Background(), "tok", client.UploadFile{Name: "a.pdf", Content: strings.NewReader("%PDF-")})
	if err == nil || !strings.Contains(err.Error(), "no key") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestDo_DecodesStructuredErrors(t *testing.T) {
	c := newClient(t, "api", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Report already exists","errors":{"history[0].endDate":["Too late"],"nationalId":"Unknown ID"}}`))
	})

	err := c.Do(context.Background(), client.Request{Method: http.MethodPost, Path: "/back-rent-reports"}, nil)
	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	want := client.ErrorBody{
		Message: "Report already exists",
		Errors: map[string][]string{
			"history[0].endDate": {"Too late"},
			"nationalId":         {"Unknown ID"},
		},
	}
	if diff := cmp.Diff(want, statusErr.Body); diff != "" {
		t.Fatalf("error body mismatch (-want +got):\n%s", diff)
	}
	if !statusErr.Structured() || statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestDo_StatusSentinels(t *testing.T) {
	c := newClient(t, "api", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/documents" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.NotFound(w, r)
	})

	if err := c.Do(context.Background(), client.Request{Path: "/documents"}, nil); !errors.Is(err, client.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := client.NewAPI(c).VerificationCode(context.Background(), "ABC123"); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	if _, err := client.New("api", "not a url"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestIdentity_MapsChallengesAndProviderErrors(t *testing.T) {
	c := newClient(t, "identity", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case r.URL.Path == "/v1/sign-in" && body["email"] == "new@example.com":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"UserNotConfirmedException","message":"User is not confirmed."}`))
		case r.URL.Path == "/v1/sign-in":
			_, _ = w.Write([]byte(`{"challengeName":"SMS_MFA","session":"s-1","deliveryMedium":"SMS"}`))
		case r.URL.Path == "/v1/challenges/mfa":
			_, _ = w.Write([]byte(`{"idToken":"id","accessToken":"access"}`))
		default:
			http.NotFound(w, r)
		}
	})
	identity := client.NewIdentity(c)

	_, err := identity.SignIn(context.Background(), "new@example.com", "pw")
	if !errors.Is(err, auth.ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}

	resp, err := identity.SignIn(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	want := auth.Response{Challenge: &auth.Challenge{Kind: auth.ChallengeMFA, Session: "s-1", Channel: "SMS"}}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	resp, err = identity.RespondMFA(context.Background(), "ada@example.com", "s-1", "123456")
	if err != nil || resp.Tokens == nil || resp.Tokens.AccessToken != "access" {
		t.Fatalf("unexpected MFA response %+v err %v", resp, err)
	}
}
