package prefixed_uuid

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	a := New("turn")
	b := New("turn")

	assert.Equal(t, "turn", a.Prefix)
	assert.NotEqual(t, uuid.Nil, a.UUID)
	assert.NotEqual(t, a.String(), b.String())
	assert.True(t, strings.HasPrefix(a.String(), "turn-"))
	assert.False(t, a.IsZero())
	assert.True(t, PrefixedUUID{}.IsZero())
}

func TestFromString(t *testing.T) {
	id := uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301")

	tests := []struct {
		name    string
		input   string
		want    PrefixedUUID
		wantErr bool
	}{
		{name: "valid", input: "voice-3f2504e0-4f89-11d3-9a0c-0305e82c3301", want: PrefixedUUID{Prefix: "voice", UUID: id}},
		{name: "no separator", input: "voice", wantErr: true},
		{name: "empty prefix", input: "-3f2504e0-4f89-11d3-9a0c-0305e82c3301", wantErr: true},
		{name: "bad uuid", input: "turn-not-a-uuid", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestJSON(t *testing.T) {
	type envelope struct {
		ID PrefixedUUID `json:"id"`
	}
	in := envelope{ID: New("turn")}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+in.ID.String()+`"}`, string(data))

	var out envelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.ID, out.ID)

	assert.Error(t, json.Unmarshal([]byte(`{"id":"garbage"}`), &out))
}
