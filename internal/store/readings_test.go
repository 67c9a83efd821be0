package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestListReadingsRangeAndOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	deviceID := uuid.New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Inserted out of timestamp order on purpose; queries sort on timestamp.
	for _, offset := range []time.Duration{2 * time.Hour, 0, 1 * time.Hour, 3 * time.Hour} {
		rd := &Reading{DeviceID: deviceID, Timestamp: base.Add(offset), PowerWatts: 100}
		if err := repo.InsertReading(ctx, rd); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	page, err := repo.ListReadings(ctx, deviceID, base.Add(30*time.Minute), base.Add(2*time.Hour), 0, nil, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Readings) != 2 {
		t.Fatalf("expected 2 readings in [0:30, 2:00], got %d", len(page.Readings))
	}
	if !page.Readings[0].Timestamp.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("expected descending order, got first ts %v", page.Readings[0].Timestamp)
	}
	if !page.Readings[1].Timestamp.Equal(base.Add(1 * time.Hour)) {
		t.Fatalf("expected 1h second, got %v", page.Readings[1].Timestamp)
	}

	// Open bounds return everything.
	all, err := repo.ListReadings(ctx, deviceID, time.Time{}, time.Time{}, 0, nil, true)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all.Readings) != 4 {
		t.Fatalf("expected 4 readings, got %d", len(all.Readings))
	}

	// A window with no samples is empty, not an error.
	empty, err := repo.ListReadings(ctx, deviceID, base.Add(10*time.Hour), base.Add(11*time.Hour), 0, nil, true)
	if err != nil {
		t.Fatalf("list empty window: %v", err)
	}
	if len(empty.Readings) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty.Readings))
	}
}

func TestReadingsInWindow(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	deviceID := uuid.New()
	other := uuid.New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{3 * time.Hour, 1 * time.Hour, 2 * time.Hour} {
		rd := &Reading{DeviceID: deviceID, Timestamp: base.Add(offset), PowerWatts: 50}
		if err := repo.InsertReading(ctx, rd); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := repo.InsertReading(ctx, &Reading{DeviceID: other, Timestamp: base.Add(90 * time.Minute), PowerWatts: 999}); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	rows, err := repo.ReadingsInWindow(ctx, deviceID, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(rows))
	}
	// Ascending order, other devices excluded.
	if !rows[0].Timestamp.Equal(base.Add(1*time.Hour)) || !rows[1].Timestamp.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("expected ascending order, got %v then %v", rows[0].Timestamp, rows[1].Timestamp)
	}
	for _, r := range rows {
		if r.DeviceID != deviceID {
			t.Fatalf("foreign device leaked into window: %+v", r)
		}
	}
}

func TestListReadingsCursorDesc(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	deviceID := uuid.New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rd := &Reading{DeviceID: deviceID, Timestamp: base.Add(time.Duration(i) * time.Minute), PowerWatts: float64(i)}
		if err := repo.InsertReading(ctx, rd); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	page1, err := repo.ListReadings(ctx, deviceID, time.Time{}, time.Time{}, 2, nil, true)
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if len(page1.Readings) != 2 || page1.NextCursor == "" {
		t.Fatalf("expected 2 readings and a cursor, got %d %q", len(page1.Readings), page1.NextCursor)
	}

	cur, err := DecodeCursor(page1.NextCursor)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	page2, err := repo.ListReadings(ctx, deviceID, time.Time{}, time.Time{}, 2, cur, true)
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if len(page2.Readings) != 2 {
		t.Fatalf("expected 2 readings on page2, got %d", len(page2.Readings))
	}
	// No overlap across pages.
	if page2.Readings[0].Timestamp.Equal(page1.Readings[1].Timestamp) {
		t.Fatalf("pages overlap at %v", page2.Readings[0].Timestamp)
	}
}

func TestCursorScopedToDevice(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	deviceID := uuid.New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rd := &Reading{DeviceID: deviceID, Timestamp: base.Add(time.Duration(i) * time.Minute), PowerWatts: float64(i)}
		if err := repo.InsertReading(ctx, rd); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	page, err := repo.ListReadings(ctx, deviceID, time.Time{}, time.Time{}, 2, nil, true)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	cur, err := DecodeCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cur.DeviceID != deviceID {
		t.Fatalf("cursor must carry the device it was issued for, got %s", cur.DeviceID)
	}

	// Replaying the cursor against another device is rejected outright.
	if _, err := repo.ListReadings(ctx, uuid.New(), time.Time{}, time.Time{}, 2, cur, true); err != ErrForeignCursor {
		t.Fatalf("expected ErrForeignCursor, got %v", err)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	// In order: not base64, base64 without the pipe layout, a wrong version
	// marker, and r1 with unparseable fields.
	for _, v := range []string{
		"not base64 ???",
		"bm90IGEgY3Vyc29y",
		"djB8eHw5OTl8eQ",
		"cjF8bm90LWEtdXVpZHwxfHg",
	} {
		if _, err := DecodeCursor(v); err == nil {
			t.Errorf("DecodeCursor(%q) accepted garbage", v)
		}
	}

	// Empty means "from the top", not an error.
	cur, err := DecodeCursor("")
	if err != nil || cur != nil {
		t.Fatalf("empty cursor must decode to nil, got %v %v", cur, err)
	}
}

func TestReadingRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	deviceID := uuid.New()
	ts := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

	in := &Reading{DeviceID: deviceID, Timestamp: ts, PowerWatts: 123.45}
	if err := repo.InsertReading(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}

	page, err := repo.ListReadings(ctx, deviceID, time.Time{}, time.Time{}, 0, nil, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Readings) != 1 {
		t.Fatalf("expected exactly 1 reading, got %d", len(page.Readings))
	}
	got := page.Readings[0]
	if got.ID != in.ID || !got.Timestamp.Equal(ts) || got.PowerWatts != 123.45 || got.DeviceID != deviceID {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
