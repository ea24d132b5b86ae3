//go:build integration

package report

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMongoSink(t *testing.T) {
	uri := os.Getenv("GEMMIRROR_TEST_MONGO")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := "gemmirror_test_" + uuid.NewString()[:8]
	sink, err := NewMongo(ctx, uri, db)
	if err != nil {
		t.Skipf("mongodb unavailable: %v", err)
	}
	defer func() {
		_ = sink.client.Database(db).Drop(ctx)
		_ = sink.Close(ctx)
	}()

	rep := sampleReport()
	if err := sink.Write(ctx, rep); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got, err := sink.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != rep.ID || got[0].Failures != 1 {
		t.Errorf("Recent() = %+v", got)
	}
}
