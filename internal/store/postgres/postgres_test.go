package postgres

import (
	"testing"
	"time"
)

func TestDSN(t *testing.T) {
	t.Run("explicit dsn wins", func(t *testing.T) {
		got := DSN(ClientConfig{DSN: " postgres://x ", Host: "ignored"})
		if got != "postgres://x" {
			t.Fatalf("got=%q", got)
		}
	})
	t.Run("built from fields", func(t *testing.T) {
		got := DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "bot"})
		want := "postgres://u:p@db:5432/bot?sslmode=disable"
		if got != want {
			t.Fatalf("got=%q want=%q", got, want)
		}
	})
}

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001_positions.sql", "002_trading_events.sql"}
	if len(names) != len(want) {
		t.Fatalf("got=%v want=%v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got=%v want=%v", names, want)
		}
	}
}

func TestNullTime(t *testing.T) {
	if nullTime(time.Time{}) != nil {
		t.Fatal("zero time must map to NULL")
	}
	now := time.Unix(1_700_000_000, 0)
	if got := derefTime(nullTime(now)); !got.Equal(now) {
		t.Fatalf("got=%v want=%v", got, now)
	}
}
