package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewSelectsDatabase(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	client, err := New(context.Background(), Options{Addr: mr.Addr(), Password: "s3cret", DB: 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Set(context.Background(), "distribution:version", 4, 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := mr.DB(3).Get("distribution:version"); err != nil || got != "4" {
		t.Fatalf("expected key in db 3, got %q err=%v", got, err)
	}
	if mr.Exists("distribution:version") {
		t.Fatal("key leaked into db 0")
	}
}

func TestNewFailsOnBadCredentials(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	_, err := New(context.Background(), Options{Addr: mr.Addr(), Password: "wrong", PingTimeout: time.Second})
	if err == nil || !strings.Contains(err.Error(), "platform/cache: ping") {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("expected missing address error")
	}
	if _, err := New(context.Background(), Options{Addr: "127.0.0.1:6379", DB: -1}); err == nil {
		t.Fatal("expected negative db error")
	}
}

func TestAsynqOptsShareDatabase(t *testing.T) {
	opts := Options{Addr: "redis:6379", Password: "pw", DB: 2}.AsynqOpts()
	if opts.Addr != "redis:6379" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected asynq options %+v", opts)
	}
}
