package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var apiEndpoint = defaultAPIEndpoint()
var apiToken = os.Getenv("CYBERSWAP_API_TOKEN")

// apiCall performs one request against the escrow API. Tests replace it.
var apiCall = callAPI

type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "listing":
		return runListingCommand(args[1:], stdout, stderr)
	case "bucket":
		return runBucketCommand(args[1:], stdout, stderr)
	case "send-token":
		return runSendToken(args[1:], stdout, stderr)
	case "send-nft":
		return runSendNFT(args[1:], stdout, stderr)
	case "approve":
		return runApproval("/v1/approve", args[1:], stdout, stderr)
	case "revoke":
		return runApproval("/v1/revoke", args[1:], stdout, stderr)
	case "market":
		return runMarket(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	case "config":
		return get("/v1/config", stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`Usage:
  escrow-cli [--api URL] <command> [flags]

Commands:
  listing     Create, fund, finalize, buy and settle listings
  bucket      Create, top up and remove payment buckets
  send-token  Send fungible tokens into escrow with a hook message
  send-nft    Send an NFT into escrow with a hook message
  approve     Approve a spender on an NFT
  revoke      Revoke an NFT approval
  market      Show a page of listings open for purchase
  balance     Show a native balance
  events      Search the event journal
  config      Show the escrow configuration

The API endpoint defaults to $CYBERSWAP_API_URL or http://localhost:8080.
Bearer tokens are read from $CYBERSWAP_API_TOKEN.`)
}

func defaultAPIEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("CYBERSWAP_API_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--api" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --api")
			}
			apiEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--api=") {
			apiEndpoint = strings.TrimPrefix(arg, "--api=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func callAPI(method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, strings.TrimRight(apiEndpoint, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(apiToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error apiError `json:"error"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
			return nil, &apiError{Status: resp.StatusCode, Code: "http", Message: strings.TrimSpace(string(raw))}
		}
		envelope.Error.Status = resp.StatusCode
		return nil, &envelope.Error
	}
	return raw, nil
}

func get(path string, stdout, stderr io.Writer) int {
	return printResult(apiCall(http.MethodGet, path, nil))(stdout, stderr)
}

func post(path string, body interface{}, stdout, stderr io.Writer) int {
	return printResult(apiCall(http.MethodPost, path, body))(stdout, stderr)
}

func printResult(raw json.RawMessage, err error) func(stdout, stderr io.Writer) int {
	return func(stdout, stderr io.Writer) int {
		if err != nil {
			return printError(stderr, err.Error())
		}
		var pretty bytes.Buffer
		if json.Indent(&pretty, raw, "", "  ") != nil {
			fmt.Fprintln(stdout, string(raw))
			return 0
		}
		fmt.Fprintln(stdout, pretty.String())
		return 0
	}
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}
