package cli

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestBuildProviderStubDefault(t *testing.T) {
	p, err := buildProvider(context.Background(), providerConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if p.Name() != "stub" {
		t.Fatalf("Name() = %q, want %q", p.Name(), "stub")
	}
}

func TestBuildProviderUnknownKind(t *testing.T) {
	_, err := buildProvider(context.Background(), providerConfig{kind: "bogus"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for unknown provider kind")
	}
}

func TestBuildProviderHTTPRequiresURL(t *testing.T) {
	_, err := buildProvider(context.Background(), providerConfig{kind: "http"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error when --http-url is missing")
	}
}

func TestBuildTransfersSizeRange(t *testing.T) {
	transfers := buildTransfers(5, 10, 20)
	if len(transfers) != 5 {
		t.Fatalf("len(transfers) = %d, want 5", len(transfers))
	}
	for _, tr := range transfers {
		if tr.Size < 10 || tr.Size > 20 {
			t.Fatalf("transfer size %d out of [10, 20]", tr.Size)
		}
	}
}

func TestBuildTransfersDegenerateRange(t *testing.T) {
	transfers := buildTransfers(3, 50, 10) // maxSize < minSize
	for _, tr := range transfers {
		if tr.Size != 50 {
			t.Fatalf("transfer size = %d, want 50 when max < min", tr.Size)
		}
	}
}
