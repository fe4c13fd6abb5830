package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

func TestQueryLogWritesOnlyFailuresAndSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	q := NewQueryLogger(logger.New(logger.Options{ServiceName: "db-test", Output: buf, Format: "json"}), 100*time.Millisecond)
	stmt := func() (string, int64) { return "SELECT * FROM events", 1 }
	ctx := context.Background()

	q.Trace(ctx, time.Now(), stmt, nil)
	q.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("expected fast and not-found statements to stay quiet, got %s", buf.String())
	}

	q.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	if !strings.Contains(buf.String(), "db.slow_query") {
		t.Fatalf("expected slow query warning, got %s", buf.String())
	}

	buf.Reset()
	q.Trace(ctx, time.Now(), stmt, errors.New("relation does not exist"))
	if !strings.Contains(buf.String(), "db.query_failed") || !strings.Contains(buf.String(), "SELECT * FROM events") {
		t.Fatalf("expected failed query with sql, got %s", buf.String())
	}
}
