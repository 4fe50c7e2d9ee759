package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamps are stored as integer unix milliseconds so that ordering and
// MAX() aggregation behave the same on SQLite and PostgreSQL.

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Millis is a non-null timestamp column.
type Millis struct {
	time.Time
}

// NewMillis truncates t to millisecond precision.
func NewMillis(t time.Time) Millis {
	return Millis{Time: fromMillis(toMillis(t))}
}

// Scan implements sql.Scanner.
func (m *Millis) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		m.Time = fromMillis(v)
	case nil:
		m.Time = time.Time{}
	default:
		return fmt.Errorf("cannot scan %T into Millis", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (m Millis) Value() (driver.Value, error) {
	return toMillis(m.Time), nil
}

// NullMillis is a nullable timestamp column.
type NullMillis struct {
	Time  time.Time
	Valid bool
}

// NewNullMillis returns a valid NullMillis for t.
func NewNullMillis(t time.Time) NullMillis {
	return NullMillis{Time: fromMillis(toMillis(t)), Valid: true}
}

// Scan implements sql.Scanner.
func (n *NullMillis) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		n.Time, n.Valid = fromMillis(v), true
	case nil:
		n.Time, n.Valid = time.Time{}, false
	default:
		return fmt.Errorf("cannot scan %T into NullMillis", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (n NullMillis) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return toMillis(n.Time), nil
}

// MarshalJSON renders an RFC 3339 time or null.
func (n NullMillis) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Time)
}
