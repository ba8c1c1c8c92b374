package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucketPerClient(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)

	allowed, _, err := bucket.AllowClient(ctx, "c1")
	if err != nil || !allowed {
		t.Fatalf("first token: allowed=%v err=%v", allowed, err)
	}
	allowed, _, _ = bucket.AllowClient(ctx, "c1")
	if !allowed {
		t.Fatal("second token rejected")
	}
	allowed, _, _ = bucket.AllowClient(ctx, "c1")
	if allowed {
		t.Fatal("third token allowed past capacity")
	}

	// Buckets are isolated per client.
	allowed, _, _ = bucket.AllowClient(ctx, "c2")
	if !allowed {
		t.Fatal("fresh client rejected")
	}
}
