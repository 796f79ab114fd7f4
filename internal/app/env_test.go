package app

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("PARLEY_TEST_STR", "value")
	t.Setenv("PARLEY_TEST_STR_WS", "   ")

	if got := EnvString("PARLEY_TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvString = %q, want value", got)
	}
	if got := EnvString("PARLEY_TEST_STR_WS", "def"); got != "def" {
		t.Fatalf("EnvString whitespace = %q, want def", got)
	}
	if got := EnvString("PARLEY_TEST_STR_MISSING", "def"); got != "def" {
		t.Fatalf("EnvString missing = %q, want def", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("PARLEY_TEST_BOOL_T", "true")
	t.Setenv("PARLEY_TEST_BOOL_1", "1")
	t.Setenv("PARLEY_TEST_BOOL_BAD", "yes-please")

	if !EnvBool("PARLEY_TEST_BOOL_T", false) {
		t.Fatalf("EnvBool(true) = false")
	}
	if !EnvBool("PARLEY_TEST_BOOL_1", false) {
		t.Fatalf("EnvBool(1) = false")
	}
	if EnvBool("PARLEY_TEST_BOOL_BAD", false) {
		t.Fatalf("EnvBool(garbage) did not fall back to default")
	}
	if !EnvBool("PARLEY_TEST_BOOL_MISSING", true) {
		t.Fatalf("EnvBool missing did not fall back to default")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("PARLEY_TEST_INT", "42")
	t.Setenv("PARLEY_TEST_INT_NEG", "-3")
	t.Setenv("PARLEY_TEST_INT_BAD", "many")

	if got := EnvInt("PARLEY_TEST_INT", 7); got != 42 {
		t.Fatalf("EnvInt = %d, want 42", got)
	}
	if got := EnvInt("PARLEY_TEST_INT_NEG", 7); got != 7 {
		t.Fatalf("EnvInt negative = %d, want default 7", got)
	}
	if got := EnvInt("PARLEY_TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("EnvInt garbage = %d, want default 7", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("PARLEY_TEST_DUR", "250ms")
	t.Setenv("PARLEY_TEST_DUR_NEG", "-1s")
	t.Setenv("PARLEY_TEST_DUR_BAD", "soon")

	if got := EnvDuration("PARLEY_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("EnvDuration = %v, want 250ms", got)
	}
	if got := EnvDuration("PARLEY_TEST_DUR_NEG", time.Second); got != time.Second {
		t.Fatalf("EnvDuration negative = %v, want default 1s", got)
	}
	if got := EnvDuration("PARLEY_TEST_DUR_BAD", time.Second); got != time.Second {
		t.Fatalf("EnvDuration garbage = %v, want default 1s", got)
	}
}

func TestEnvInt32(t *testing.T) {
	t.Setenv("PARLEY_TEST_I32", "12")
	t.Setenv("PARLEY_TEST_I32_NEG", "-1")

	if got := EnvInt32("PARLEY_TEST_I32", 5); got != 12 {
		t.Fatalf("EnvInt32 = %d, want 12", got)
	}
	if got := EnvInt32("PARLEY_TEST_I32_NEG", 5); got != 5 {
		t.Fatalf("EnvInt32 negative = %d, want default 5", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PARLEY_HTTP_ADDR", "")
	t.Setenv("PARLEY_DATABASE_URL", "")
	t.Setenv("PARLEY_DB_SCHEMA", "")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q, want 0.0.0.0:8080", cfg.HTTPAddr)
	}
	if cfg.DBSchema != "parley" {
		t.Fatalf("DBSchema = %q, want parley", cfg.DBSchema)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.ReadinessRequireDB {
		t.Fatalf("ReadinessRequireDB defaulted to true")
	}
}
