package storage

import "testing"

func TestUpsertConflictClause(t *testing.T) {
	t.Parallel()

	sqlite := (&SQLiteDialect{}).UpsertConflict([]string{"sku", "marketplace"})
	if sqlite != "ON CONFLICT(sku, marketplace) DO UPDATE SET" {
		t.Errorf("sqlite clause = %q", sqlite)
	}

	pg := (&PostgresDialect{}).UpsertConflict([]string{"period", "marketplace"})
	if pg != "ON CONFLICT (period, marketplace) DO UPDATE SET" {
		t.Errorf("postgres clause = %q", pg)
	}
}

func TestLimitOffsetClause(t *testing.T) {
	t.Parallel()

	d := &SQLiteDialect{}
	cases := []struct {
		limit, offset int
		want          string
	}{
		{0, 0, ""},
		{10, 0, "LIMIT 10"},
		{10, 20, "LIMIT 10 OFFSET 20"},
	}
	for _, c := range cases {
		if got := d.LimitOffset(c.limit, c.offset); got != c.want {
			t.Errorf("LimitOffset(%d, %d) = %q, want %q", c.limit, c.offset, got, c.want)
		}
	}
}

func TestConvertPlaceholders(t *testing.T) {
	t.Parallel()

	got := ConvertPlaceholders("SELECT * FROM t WHERE a = ? AND b = ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if got != want {
		t.Errorf("ConvertPlaceholders = %q, want %q", got, want)
	}
	if got := ConvertPlaceholders("SELECT 1"); got != "SELECT 1" {
		t.Errorf("no-placeholder query changed: %q", got)
	}
}
