package authflow

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

func beginTestFlow(t *testing.T) *Flow {
	t.Helper()
	f, err := Begin("http://auth.example.com/login", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(f.Cancel)
	return f
}

// callbackURL derives the flow's loopback callback endpoint from its
// advertised authorization URL.
func callbackURL(t *testing.T, f *Flow, query string) string {
	t.Helper()
	u, err := url.Parse(f.URL())
	if err != nil {
		t.Fatalf("parsing auth URL: %v", err)
	}
	redirect := u.Query().Get("redirect_uri")
	if redirect == "" {
		t.Fatal("authorization URL must carry a redirect_uri")
	}
	return redirect + "?" + query
}

func TestBegin_AuthURLCarriesRedirectURI(t *testing.T) {
	f := beginTestFlow(t)

	u, err := url.Parse(f.URL())
	if err != nil {
		t.Fatalf("parsing auth URL: %v", err)
	}
	redirect := u.Query().Get("redirect_uri")
	if !strings.HasPrefix(redirect, "http://127.0.0.1:") || !strings.HasSuffix(redirect, "/callback") {
		t.Errorf("redirect_uri = %q, want loopback /callback endpoint", redirect)
	}
}

func TestFlow_SuccessCallback(t *testing.T) {
	f := beginTestFlow(t)

	resp, err := http.Get(callbackURL(t, f, "token=abc&user=a%40x.com"))
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("callback status = %d, want 200", resp.StatusCode)
	}

	cred, err := f.Result(2 * time.Second)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if cred.Token != "abc" || cred.User != "a@x.com" {
		t.Errorf("cred = %+v, want token abc / user a@x.com", cred)
	}
}

func TestFlow_ErrorCallback(t *testing.T) {
	f := beginTestFlow(t)

	resp, err := http.Get(callbackURL(t, f, "error=access_denied"))
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	resp.Body.Close()

	_, err = f.Result(2 * time.Second)
	var cbErr *CallbackError
	if !errors.As(err, &cbErr) {
		t.Fatalf("Result error = %v, want *CallbackError", err)
	}
	if cbErr.Reason != "access_denied" {
		t.Errorf("Reason = %q, want access_denied", cbErr.Reason)
	}
}

func TestFlow_MissingToken(t *testing.T) {
	f := beginTestFlow(t)

	resp, err := http.Get(callbackURL(t, f, "user=a%40x.com"))
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	resp.Body.Close()

	if _, err := f.Result(2 * time.Second); err == nil {
		t.Error("a callback without a token must fail")
	}
}

func TestFlow_CallbackConsumedOnce(t *testing.T) {
	f := beginTestFlow(t)
	target := callbackURL(t, f, "token=abc&user=a%40x.com")

	first, err := http.Get(target)
	if err != nil {
		t.Fatalf("first GET: %v", err)
	}
	first.Body.Close()

	second, err := http.Get(target)
	if err != nil {
		t.Fatalf("second GET: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusGone {
		t.Errorf("second callback status = %d, want 410", second.StatusCode)
	}

	cred, err := f.Result(2 * time.Second)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if cred.Token != "abc" {
		t.Errorf("Token = %q, the first callback must win", cred.Token)
	}
}

func TestFlow_Timeout(t *testing.T) {
	f := beginTestFlow(t)

	msg, ok := f.Wait(10 * time.Millisecond)().(ResultMsg)
	if !ok {
		t.Fatal("Wait command should produce a ResultMsg")
	}
	if !errors.Is(msg.Err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", msg.Err)
	}
}
