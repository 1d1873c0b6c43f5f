package gcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

func TestBucketPutIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	store, err := NewBucketService(logger.Nop(), BucketConfig{
		Name:         "imgs",
		EmulatorHost: srv.URL,
		Timeout:      100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewBucketService: %v", err)
	}
	defer store.Close()

	start := time.Now()
	_, err = store.Put(context.Background(), "listings/OLX/1/a.png", "image/png", []byte("png"))
	if err == nil {
		t.Fatalf("Put: expected error from stalled upload")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("Put took %s", elapsed)
	}
}
