package otel

import (
	"context"
	"testing"
)

func TestParseHeadersSkipsMalformedPairs(t *testing.T) {
	got := ParseHeaders("authorization=Bearer x, broken ,=nokey,tenant = escrow")
	if len(got) != 2 {
		t.Fatalf("expected two headers, got %v", got)
	}
	if got["authorization"] != "Bearer x" || got["tenant"] != "escrow" {
		t.Fatalf("unexpected headers %v", got)
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "escrowd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}
