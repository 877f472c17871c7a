package transferdemo

import (
	"context"
	"testing"
	"time"
)

func TestStubProviderRecordsUploads(t *testing.T) {
	p := NewStubProvider(time.Microsecond)
	t1 := Transfer{Name: "a", Size: 100}

	if err := p.Upload(context.Background(), t1); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	stored := p.Stored()
	if size, ok := stored["a"]; !ok || size != 100 {
		t.Fatalf("Stored()[\"a\"] = %d, %v, want 100, true", size, ok)
	}
}

func TestStubProviderRespectsContextCancellation(t *testing.T) {
	p := NewStubProvider(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Upload(ctx, Transfer{Name: "b", Size: 1})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
