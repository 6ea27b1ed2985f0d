package apigateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, _ *string, body []byte) (any, error) {
		return string(body), nil
	})
}

func newTestGateway(t *testing.T, cfg Config) (*Gateway, *httptest.Server) {
	t.Helper()
	cfg.Handler = echoHandler()
	g := New("127.0.0.1:0", cfg)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r)
	}))
	t.Cleanup(ts.Close)
	return g, ts
}

func TestGatewayEmptyAuthTableAdmitsAllRequests(t *testing.T) {
	_, ts := newTestGateway(t, Config{Prefix: "/"})

	resp, err := http.Post(ts.URL+"/", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGatewayRejectsMissingCredentials(t *testing.T) {
	_, ts := newTestGateway(t, Config{
		Prefix:          "/",
		AuthorizedUsers: map[string]string{"alice": "s3cret"},
	})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestGatewayAcceptsValidCredentials(t *testing.T) {
	_, ts := newTestGateway(t, Config{
		Prefix:          "/",
		AuthorizedUsers: map[string]string{"alice": "s3cret"},
	})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.SetBasicAuth("alice", "s3cret")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error != nil {
		t.Fatalf("expected no error envelope, got %+v", env.Error)
	}
}

func TestGatewayRejectsWrongPassword(t *testing.T) {
	_, ts := newTestGateway(t, Config{
		Prefix:          "/",
		AuthorizedUsers: map[string]string{"alice": "s3cret"},
	})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.SetBasicAuth("alice", "wrong")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestGatewayHandlerErrorIsReportedInEnvelope(t *testing.T) {
	cfg := Config{Prefix: "/"}
	cfg.Handler = HandlerFunc(func(_ context.Context, _ *string, _ []byte) (any, error) {
		return nil, errBoom
	})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		New("127.0.0.1:0", cfg).serve(w, r)
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error == nil || env.Error.Message != errBoom.Error() {
		t.Fatalf("expected handler error in envelope, got %+v", env.Error)
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
