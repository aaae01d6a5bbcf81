package llm

import (
	"errors"
	"testing"
)

func TestLocalBuildRequest_History(t *testing.T) {
	a := NewLocalAdapter(nil)
	wire, err := a.BuildRequest(historyRequest(), "")
	if err != nil {
		t.Fatal(err)
	}
	if wire.URL != "http://localhost:1234/v1/chat/completions" {
		t.Errorf("URL = %q", wire.URL)
	}
	assertJSONEqual(t, wire.Body, loadGolden(t, "local/request_history.json"))
}

func TestLocalBuildRequest_NeverSendsCredential(t *testing.T) {
	a := NewLocalAdapter(nil)
	wire, err := a.BuildRequest(historyRequest(), "ignored")
	if err != nil {
		t.Fatal(err)
	}
	if wire.Header.Get("Authorization") != "" {
		t.Errorf("Authorization = %q, want none", wire.Header.Get("Authorization"))
	}
	if a.RequiresCredential() {
		t.Error("local server never requires a credential")
	}
}

func TestLocalClassifyError(t *testing.T) {
	a := NewLocalAdapter(nil)

	got := a.ClassifyError(&RawResponse{StatusCode: 200, Body: []byte(`{"choices":[{"message":{}}]}`)}, nil)
	if got.Kind != ErrProvider {
		t.Errorf("Kind = %v, want ErrProvider", got.Kind)
	}

	// No error code convention: even an OpenAI-looking envelope is just a bad response.
	got = a.ClassifyError(&RawResponse{StatusCode: 401, Body: []byte(`{"error":{"code":"invalid_api_key"}}`)}, nil)
	if got.Kind != ErrProvider {
		t.Errorf("Kind = %v, want ErrProvider", got.Kind)
	}

	cause := errors.New("connection refused")
	got = a.ClassifyError(nil, cause)
	if got.Kind != ErrNetwork || !errors.Is(got, cause) {
		t.Errorf("got %v, want network error wrapping cause", got)
	}
}
