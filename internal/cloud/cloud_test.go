package cloud

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain error", errors.New("x"), Transient},
		{"schema", Errorf(SchemaMismatch, "notes", "note", "missing"), SchemaMismatch},
		{"wrapped not found", fmt.Errorf("outer: %w", Errorf(NotFound, "notes", "", "gone")), NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsSchemaMismatch_Nil(t *testing.T) {
	assert.False(t, IsSchemaMismatch(nil))
	assert.False(t, IsNotFound(nil))
}

func TestError_Message(t *testing.T) {
	err := Errorf(SchemaMismatch, "highlights", "language_code", "column does not exist")
	assert.Equal(t, "cloud: schema_mismatch: highlights.language_code: column does not exist", err.Error())

	err = Errorf(Transient, "", "", "timeout")
	assert.Equal(t, "cloud: transient: timeout", err.Error())
}

func TestFilter(t *testing.T) {
	f := Eq("user_id", "u1", "id", "a").WithIn("plan_id", []any{"p1", "p2"})

	assert.Equal(t, "u1", f.Eq["user_id"])
	assert.Equal(t, "a", f.Eq["id"])
	assert.Len(t, f.In["plan_id"], 2)
	assert.ElementsMatch(t, []string{"user_id", "id", "plan_id"}, f.Columns())
}
