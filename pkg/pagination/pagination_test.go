package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{At: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if !out.At.Equal(in.At) || out.ID != in.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", out, in)
	}
}

func TestParseCursorEdgeCases(t *testing.T) {
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("expected nil cursor for blank input, got %v err=%v", c, err)
	}
	if _, err := ParseCursor("!!!"); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := ParseCursor(EncodeCursor(Cursor{})[:4]); err == nil {
		t.Fatal("expected format error for truncated cursor")
	}
}

func TestNormalizeLimit(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit || NormalizeLimit(500) != MaxLimit || NormalizeLimit(7) != 7 {
		t.Fatal("unexpected limit normalization")
	}
	if LimitWithBuffer(7) != 8 {
		t.Fatal("expected buffer of one")
	}
}

func TestBuildPage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	type row struct {
		id uuid.UUID
		at time.Time
	}
	rows := []row{{uuid.New(), base.Add(3 * time.Second)}, {uuid.New(), base.Add(2 * time.Second)}, {uuid.New(), base.Add(time.Second)}}
	cursorOf := func(r row) Cursor { return Cursor{At: r.at, ID: r.id} }

	page := BuildPage(rows, 2, cursorOf)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d %q", len(page.Items), page.NextCursor)
	}
	next, err := ParseCursor(page.NextCursor)
	if err != nil || next.ID != rows[1].id {
		t.Fatalf("next cursor should point at last kept row, got %+v err=%v", next, err)
	}

	last := BuildPage(rows[:1], 2, cursorOf)
	if last.NextCursor != "" || len(last.Items) != 1 {
		t.Fatalf("expected final page, got %+v", last)
	}

	empty := BuildPage[row](nil, 2, cursorOf)
	if empty.Items == nil {
		t.Fatal("expected non-nil empty slice for JSON")
	}
}
