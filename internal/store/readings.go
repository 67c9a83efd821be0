package store

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

var (
	ErrBadCursor = errors.New("malformed cursor")
	// ErrForeignCursor rejects a cursor replayed against a device it was not
	// issued for; pages must never leak across devices.
	ErrForeignCursor = errors.New("cursor was issued for a different device")
)

// Cursor marks a resume position in one device's readings. The wire form is
// base64url of "r1|<device>|<unix-nanos>|<reading-id>"; the leading r1 lets
// the format change without breaking clients holding old cursors.
type Cursor struct {
	DeviceID uuid.UUID
	TS       time.Time
	ID       uuid.UUID
}

const cursorVersion = "r1"

func EncodeCursor(c Cursor) string {
	raw := strings.Join([]string{
		cursorVersion,
		c.DeviceID.String(),
		strconv.FormatInt(c.TS.UTC().UnixNano(), 10),
		c.ID.String(),
	}, "|")
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a client-supplied cursor. An empty string is a valid
// "start from the top" cursor and decodes to nil.
func DecodeCursor(v string) (*Cursor, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return nil, ErrBadCursor
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 4 || parts[0] != cursorVersion {
		return nil, ErrBadCursor
	}
	deviceID, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, ErrBadCursor
	}
	nanos, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, ErrBadCursor
	}
	id, err := uuid.Parse(parts[3])
	if err != nil {
		return nil, ErrBadCursor
	}
	return &Cursor{DeviceID: deviceID, TS: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// InsertReading appends one sample. The store does not check device
// ownership; the service layer resolves that before calling here.
func (r *Repo) InsertReading(ctx context.Context, rd *Reading) error {
	if rd.ID == uuid.Nil {
		rd.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(rd).Error
}

// ReadingsInWindow returns every reading for the device in [from, to],
// ascending by timestamp. Aggregation needs the full window, so there is no
// page limit here.
func (r *Repo) ReadingsInWindow(ctx context.Context, deviceID uuid.UUID, from, to time.Time) ([]Reading, error) {
	var rows []Reading
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND timestamp >= ? AND timestamp <= ?", deviceID, from, to).
		Order("timestamp asc, id asc").
		Find(&rows).Error
	return rows, err
}

type Page struct {
	Readings   []Reading `json:"readings"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// ListReadings returns readings for one device filtered to
// [from, to] (zero bounds are open), keyset-paginated on (timestamp, id).
func (r *Repo) ListReadings(ctx context.Context, deviceID uuid.UUID, from, to time.Time, limit int, cursor *Cursor, desc bool) (Page, error) {
	if cursor != nil && cursor.DeviceID != deviceID {
		return Page{}, ErrForeignCursor
	}
	if limit <= 0 {
		limit = 1000
	}
	if limit > 10000 {
		limit = 10000
	}

	exprs := []clause.Expression{
		clause.Eq{Column: clause.Column{Name: "device_id"}, Value: deviceID},
	}
	if !from.IsZero() {
		exprs = append(exprs, clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: from})
	}
	if !to.IsZero() {
		exprs = append(exprs, clause.Lte{Column: clause.Column{Name: "timestamp"}, Value: to})
	}
	if cursor != nil {
		if desc {
			exprs = append(exprs, clause.Or(
				clause.Lt{Column: clause.Column{Name: "timestamp"}, Value: cursor.TS},
				clause.And(
					clause.Eq{Column: clause.Column{Name: "timestamp"}, Value: cursor.TS},
					clause.Lt{Column: clause.Column{Name: "id"}, Value: cursor.ID},
				),
			))
		} else {
			exprs = append(exprs, clause.Or(
				clause.Gt{Column: clause.Column{Name: "timestamp"}, Value: cursor.TS},
				clause.And(
					clause.Eq{Column: clause.Column{Name: "timestamp"}, Value: cursor.TS},
					clause.Gt{Column: clause.Column{Name: "id"}, Value: cursor.ID},
				),
			))
		}
	}

	order := clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "timestamp"}, Desc: desc},
		{Column: clause.Column{Name: "id"}, Desc: desc},
	}}

	var rows []Reading
	q := r.db.WithContext(ctx).Clauses(clause.Where{Exprs: exprs}, order).Limit(limit + 1)
	if err := q.Find(&rows).Error; err != nil {
		return Page{}, err
	}

	var next *Cursor
	if len(rows) > limit {
		last := rows[limit-1]
		next = &Cursor{DeviceID: deviceID, TS: last.Timestamp, ID: last.ID}
		rows = rows[:limit]
	}

	out := Page{Readings: rows}
	if next != nil {
		out.NextCursor = EncodeCursor(*next)
	}
	return out, nil
}
