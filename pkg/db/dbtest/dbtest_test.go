package dbtest

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

func TestOpenKeepsMissingRowsQuiet(t *testing.T) {
	buf := &bytes.Buffer{}
	conn := OpenWithLogger(t, logger.New(logger.Options{ServiceName: "dbtest", Output: buf, Format: "json"}))

	var event models.Event
	err := conn.First(&event, "id = ?", uuid.New()).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected missing row to stay quiet, got %s", buf.String())
	}

	if err := conn.Exec("SELECT * FROM no_such_table").Error; err == nil {
		t.Fatal("expected query against missing table to fail")
	}
	if !strings.Contains(buf.String(), "db.query_failed") {
		t.Fatalf("expected failed query to be logged, got %s", buf.String())
	}
}

func TestOpenIsolatesDatabases(t *testing.T) {
	first := Open(t)
	second := Open(t)
	if err := first.Create(&models.AlumniProfile{FullName: "Only Here"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var n int64
	if err := second.Model(&models.AlumniProfile{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected isolated database, found %d rows", n)
	}
}
