package cloudsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hyperengineering/gloss"
)

func TestAsInt(t *testing.T) {
	assert.Equal(t, 3, asInt(3))
	assert.Equal(t, 3, asInt(int32(3)))
	assert.Equal(t, 3, asInt(int64(3)))
	assert.Equal(t, 3, asInt(float64(3)))
	assert.Equal(t, 3, asInt(json.Number("3")))
	assert.Equal(t, 3, asInt(" 3 "))
	assert.Equal(t, 0, asInt(nil))
	assert.Equal(t, 0, asInt("x"))
}

func TestAsTime(t *testing.T) {
	want := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, want.Equal(asTime(want)))
	assert.True(t, want.Equal(asTime("2024-05-01T09:00:00Z")))
	assert.True(t, want.Equal(asTime("2024-05-01T11:00:00+02:00")))
	assert.True(t, want.Equal(asTime("2024-05-01 09:00:00+00")))
	assert.True(t, asTime("garbage").IsZero())
	assert.True(t, asTime(nil).IsZero())
}

func TestAsStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, asStrings([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, asStrings([]any{"a", "b"}))
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, asStrings(`["2024-01-01","2024-01-02"]`))
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, asStrings(`{2024-01-01,"2024-01-02"}`))
	assert.Nil(t, asStrings("{}"))
	assert.Nil(t, asStrings(42))
}

func TestExpandThenCollapse(t *testing.T) {
	r := record{
		Scope: gloss.Scope{Language: "EN", Version: "whatever"},
		Range: gloss.VerseRange{BookID: "JHN", Chapter: 3, VerseStart: 16, VerseEnd: 18},
		Note:  "love", CreatedAt: t0, UpdatedAt: t0,
	}

	rows := expandMobile(notes, user, r)
	assert.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "en", row["language_code"])
		assert.Equal(t, "EN1", row["version_code"])
	}

	var verses []record
	for _, row := range rows {
		verses = append(verses, decodeVerse(notes, row))
	}
	got := collapse(notes, verses)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "en:EN1:JHN:3:16:18", got[0].ID)
		assert.Equal(t, "love", got[0].Note)
	}
}

func TestCollapse_DuplicateVerses(t *testing.T) {
	v := func(n int) record {
		return record{Scope: tb1(), Range: gloss.VerseRange{BookID: "JHN", Chapter: 3, VerseStart: n, VerseEnd: n}, CreatedAt: t0}.canonical()
	}
	got := collapse(bookmarks, []record{v(2), v(1), v(2), v(3)})
	if assert.Len(t, got, 1) {
		assert.Equal(t, 1, got[0].Range.VerseStart)
		assert.Equal(t, 3, got[0].Range.VerseEnd)
	}
}

func TestCollapse_DifferentCreationTimesStaySeparate(t *testing.T) {
	a := record{Scope: tb1(), Range: gloss.VerseRange{BookID: "JHN", Chapter: 3, VerseStart: 1, VerseEnd: 1}, CreatedAt: t0}
	b := record{Scope: tb1(), Range: gloss.VerseRange{BookID: "JHN", Chapter: 3, VerseStart: 2, VerseEnd: 2}, CreatedAt: t0.Add(time.Second)}

	assert.Len(t, collapse(bookmarks, []record{a, b}), 2)
}

func TestEncodeScoped_DefaultsNoteUpdatedAt(t *testing.T) {
	r := record{Scope: tb1(), Range: gloss.VerseRange{BookID: "JHN", Chapter: 1, VerseStart: 1, VerseEnd: 1}, Note: "x", CreatedAt: t0}
	row := encodeScoped(notes, user, r)

	assert.Equal(t, "id:TB1:JHN:1:1:1", row["id"])
	assert.Equal(t, t0, row["updated_at"])
}
