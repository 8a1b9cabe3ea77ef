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
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampScan(t *testing.T) {
	want := time.Date(2025, 3, 1, 10, 20, 30, 123456000, time.UTC)
	tests := []struct {
		name  string
		src   interface{}
		valid bool
		raw   string
	}{
		{"zulu suffix", "2025-03-01T10:20:30.123456Z", true, ""},
		{"explicit offset", "2025-03-01T12:20:30.123456+02:00", true, ""},
		{"stored layout", "2025-03-01 10:20:30.123456+00:00", true, ""},
		{"bytes", []byte("2025-03-01 10:20:30.123456+00:00"), true, ""},
		{"driver time", want.In(time.FixedZone("X", 3600)), true, ""},
		{"garbage kept", "yesterday", false, "yesterday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, ts.Scan(tt.src))
			assert.Equal(t, tt.valid, ts.Valid())
			assert.Equal(t, tt.raw, ts.Raw)
			if tt.valid {
				assert.True(t, ts.Time.Equal(want), "got %s", ts.Time)
				assert.Equal(t, time.UTC, ts.Time.Location())
			}
		})
	}
}

func TestTimestampNull(t *testing.T) {
	var ts Timestamp
	require.NoError(t, ts.Scan(nil))
	assert.True(t, ts.IsNull())

	v, err := ts.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestTimestampValueIsFixedWidth(t *testing.T) {
	a := NewTimestamp(time.Date(2025, 1, 1, 0, 0, 0, 100000000, time.UTC))
	b := NewTimestamp(time.Date(2025, 1, 1, 0, 0, 0, 120000000, time.UTC))
	va, _ := a.Value()
	vb, _ := b.Value()
	assert.Equal(t, "2025-01-01 00:00:00.100000+00:00", va)
	assert.Less(t, va.(string), vb.(string))

	var back Timestamp
	require.NoError(t, back.Scan(va))
	assert.True(t, back.Equal(a))
}

func TestRefScan(t *testing.T) {
	id := uuid.New()

	var r Ref
	require.NoError(t, r.Scan(id.String()))
	assert.True(t, r.Valid())
	assert.Equal(t, id, r.UUID)

	require.NoError(t, r.Scan(DetachedRef))
	assert.False(t, r.Valid())
	assert.True(t, r.Detached())
	assert.Equal(t, DetachedRef, r.String())

	v, err := RefOf(id).Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)
}

func TestFiltersValidate(t *testing.T) {
	assert.NoError(t, Filters{"username": "alice", "_private_2": 1}.Validate())

	for _, key := range []string{"name; DROP TABLE users", "1abc", "a-b", "", "first name"} {
		err := Filters{key: 1}.Validate()
		require.Error(t, err, key)
		assert.True(t, errors.Is(err, ErrInvalidFilterKey))
		var target *InvalidFilterKeyError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, key, target.Key)
	}
}

func TestPageRequestDefaults(t *testing.T) {
	p := NewDefaultPageRequest(0, 0)
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, 10, p.GetPageSize())
	assert.Equal(t, 0, p.GetOffset())

	p = NewPageRequest(3, 25, Filters{"name": "x"})
	assert.Equal(t, 50, p.GetOffset())

	pg := NewDefaultPagination[int](1, 10)
	pg.Total = 21
	assert.Equal(t, 3, pg.Pages())
}

func TestRole(t *testing.T) {
	r, err := ParseRole(" Editor ")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, r)
	assert.Equal(t, 1, r.Number())
	assert.NotEqual(t, IllegalDesc, r.Desc())

	_, err = ParseRole("admin")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, IllegalName, Role("admin").Name())
}
