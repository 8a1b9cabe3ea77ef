/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the fixed-width UTC text form written to the store, so
// lexical order on the column equals chronological order.
const TimestampLayout = "2006-01-02 15:04:05.000000+00:00"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is a best-effort time column. Text that cannot be parsed is kept
// in Raw instead of failing the row; the zero value maps to NULL.
type Timestamp struct {
	time.Time
	Raw string
}

// Now returns the current UTC time truncated to the stored precision.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC().Truncate(time.Microsecond)}
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

// ParseTimestamp parses stored text, normalizing a trailing Z to +00:00.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Valid reports whether the column held a parseable time.
func (t Timestamp) Valid() bool { return !t.Time.IsZero() }

// IsNull reports whether the column was NULL.
func (t Timestamp) IsNull() bool { return t.Time.IsZero() && t.Raw == "" }

// Equal compares the parsed instants, or the raw text when neither parsed.
func (t Timestamp) Equal(o Timestamp) bool {
	if t.Valid() || o.Valid() {
		return t.Time.Equal(o.Time)
	}
	return t.Raw == o.Raw
}

func (t Timestamp) String() string {
	if t.Valid() {
		return t.Time.UTC().Format(TimestampLayout)
	}
	return t.Raw
}

func (t *Timestamp) Scan(src interface{}) error {
	*t = Timestamp{}
	switch v := src.(type) {
	case nil:
	case time.Time:
		t.Time = v.UTC()
	case string:
		t.setText(v)
	case []byte:
		t.setText(string(v))
	default:
		t.Raw = fmt.Sprint(v)
	}
	return nil
}

func (t *Timestamp) setText(s string) {
	if parsed, err := ParseTimestamp(s); err == nil {
		t.Time = parsed
		return
	}
	t.Raw = s
}

func (t Timestamp) Value() (driver.Value, error) {
	switch {
	case t.Valid():
		return t.Time.UTC().Format(TimestampLayout), nil
	case t.Raw != "":
		return t.Raw, nil
	default:
		return nil, nil
	}
}
