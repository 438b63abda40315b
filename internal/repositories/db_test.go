package repositories

import (
	"strings"
	"testing"
)

func TestRebind(t *testing.T) {
	q := `UPDATE payments SET status = ? WHERE id = ? AND status = ?`
	if got := MySQL.Rebind(q); got != q {
		t.Fatalf("mysql query changed: %s", got)
	}
	want := `UPDATE payments SET status = $1 WHERE id = $2 AND status = $3`
	if got := Postgres.Rebind(q); got != want {
		t.Fatalf("got %s", got)
	}
}

func TestParseDialect(t *testing.T) {
	cases := map[string]Dialect{"mysql": MySQL, "MariaDB": MySQL, "pgx": Postgres, "postgres": Postgres}
	for in, want := range cases {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("sqlite"); err == nil {
		t.Fatal("expected an error for sqlite")
	}
}

func TestDDLPerDialect(t *testing.T) {
	for _, stmt := range Postgres.DDL() {
		if strings.Contains(stmt, "{{") || strings.Contains(stmt, "AUTO_INCREMENT") {
			t.Fatalf("bad postgres ddl: %s", stmt)
		}
	}
	for _, stmt := range MySQL.DDL() {
		if strings.Contains(stmt, "{{") || strings.Contains(stmt, "BIGSERIAL") {
			t.Fatalf("bad mysql ddl: %s", stmt)
		}
	}
}

func TestNormalizeDSN(t *testing.T) {
	dsn, err := MySQL.NormalizeDSN("shop:secret@tcp(localhost:3306)/storefront")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dsn, "parseTime=true") || !strings.Contains(dsn, "clientFoundRows=true") {
		t.Fatalf("dsn = %s", dsn)
	}
	pg := "postgres://shop@localhost/storefront"
	if got, _ := Postgres.NormalizeDSN(pg); got != pg {
		t.Fatalf("postgres dsn changed: %s", got)
	}
}
