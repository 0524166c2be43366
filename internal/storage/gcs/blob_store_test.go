package gcs

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
)

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Config{Bucket: "b"}); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := New(&storage.Client{}, Config{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(&storage.Client{}, Config{Bucket: "snapshots"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.PutObject(context.Background(), "  ", "text/html", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for blank path")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() on borrowed client = %v", err)
	}
}
