package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cyberswap/core/types"
	"cyberswap/rpc"
)

var (
	testSeller = types.DeriveAddress("cli/seller")
	testToken  = types.DeriveAddress("cli/token")
)

type capturedCall struct {
	method string
	path   string
	body   []byte
}

func stubAPI(t *testing.T, response string) *[]capturedCall {
	t.Helper()
	calls := &[]capturedCall{}
	original := apiCall
	apiCall = func(method, path string, body interface{}) (json.RawMessage, error) {
		var raw []byte
		if body != nil {
			var err error
			if raw, err = json.Marshal(body); err != nil {
				t.Fatalf("marshal: %v", err)
			}
		}
		*calls = append(*calls, capturedCall{method: method, path: path, body: raw})
		return json.RawMessage(response), nil
	}
	t.Cleanup(func() { apiCall = original })
	return calls
}

func TestUsageAndUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "escrow-cli [--api URL]") {
		t.Fatalf("usage not printed: %q", stderr.String())
	}
	stderr.Reset()
	if code := run([]string{"teleport"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command: teleport") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestListingCreatePostsExecute(t *testing.T) {
	calls := stubAPI(t, `{"action":"create_listing"}`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"listing", "create",
		"--sender", testSeller.String(),
		"--funds", "100X",
		"--ask", "50Y,7@" + testToken.String(),
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if len(*calls) != 1 || (*calls)[0].path != "/v1/execute" || (*calls)[0].method != http.MethodPost {
		t.Fatalf("unexpected calls %+v", *calls)
	}
	var req rpc.ExecuteRequest
	if err := json.Unmarshal((*calls)[0].body, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Sender != testSeller || len(req.Funds) != 1 || req.Funds[0].Denom != "X" || req.Funds[0].Amount.Uint64() != 100 {
		t.Fatalf("unexpected request %+v", req)
	}
	ask := req.Msg.CreateListing.Ask
	if len(ask.Native) != 1 || len(ask.Fungible) != 1 || ask.Fungible[0].Contract != testToken || ask.Fungible[0].Amount.Uint64() != 7 {
		t.Fatalf("unexpected ask %+v", ask)
	}
	if !strings.Contains(stdout.String(), `"action": "create_listing"`) {
		t.Fatalf("result not printed: %q", stdout.String())
	}
}

func TestArgumentValidation(t *testing.T) {
	calls := stubAPI(t, `{}`)
	cases := map[string][]string{
		"missing sender":  {"listing", "withdraw", "--id", "1"},
		"bad coin":        {"listing", "buy", "--sender", testSeller.String(), "--id", "1", "--funds", "Y50"},
		"empty ask":       {"listing", "create", "--sender", testSeller.String(), "--funds", "1X"},
		"no seconds":      {"listing", "finalize", "--sender", testSeller.String(), "--id", "1"},
		"bad hook":        {"send-token", "--sender", testSeller.String(), "--contract", testToken.String(), "--amount", "5", "--msg", "{"},
		"exclusive":       {"approve", "--owner", testSeller.String(), "--collection", testToken.String(), "--token-id", "1", "--spender", testSeller.String(), "--expires-height", "5", "--expires-time", "5"},
		"page zero":       {"market", "--page", "0"},
		"unknown listing": {"listing", "explode"},
	}
	for name, args := range cases {
		var stdout, stderr bytes.Buffer
		if code := run(args, &stdout, &stderr); code != 1 {
			t.Fatalf("%s: expected exit 1, got %d", name, code)
		}
	}
	if len(*calls) != 0 {
		t.Fatalf("invalid arguments must not reach the API: %+v", *calls)
	}
}

func TestEventsBuildsQuery(t *testing.T) {
	calls := stubAPI(t, `{"events":[]}`)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"events", "--listing", "3", "--type", "escrow.listing.created"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if got := (*calls)[0].path; got != "/v1/events?listing=3&type=escrow.listing.created" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestCallAPIDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0ken" {
			t.Errorf("missing bearer token")
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_state","message":"listing is not finalized"}}`))
	}))
	defer srv.Close()
	originalEndpoint, originalToken := apiEndpoint, apiToken
	apiEndpoint, apiToken = srv.URL, "t0ken"
	defer func() { apiEndpoint, apiToken = originalEndpoint, originalToken }()

	_, err := callAPI(http.MethodGet, "/v1/listings/1", nil)
	apiErr, ok := err.(*apiError)
	if !ok {
		t.Fatalf("expected apiError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "invalid_state" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	original := apiEndpoint
	defer func() { apiEndpoint = original }()
	rest, err := applyGlobalFlags([]string{"--api", "http://node:9000", "config"})
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	if apiEndpoint != "http://node:9000" || len(rest) != 1 || rest[0] != "config" {
		t.Fatalf("unexpected result %q %v", apiEndpoint, rest)
	}
	if _, err := applyGlobalFlags([]string{"--api"}); err == nil {
		t.Fatalf("expected missing value error")
	}
}
