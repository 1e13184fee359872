package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultUUID(t *testing.T) {
	u := DefaultUUID()
	assert.Regexp(t, `^[0-9a-f]{12}$`, u)
	assert.Equal(t, u, DefaultUUID())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "get",
			in:   map[string]any{"UUID": "A1B2C3D4E5F6", "ACTION": " GET ", "ID": " UADER "},
			want: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "get", "ID": "UADER"},
		},
		{
			name: "list drops id",
			in:   map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "list", "ID": "x"},
			want: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "list"},
		},
		{
			name: "set with data",
			in: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "set", "ID": "A",
				"DATA": map[string]any{"cp": "3260"}},
			want: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "set", "ID": "A",
				"DATA": map[string]any{"cp": "3260"}},
		},
		{
			name: "flat set",
			in:   map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "set", "id": "A", "cp": "3260"},
			want: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "set", "ID": "A",
				"DATA": map[string]any{"id": "A", "cp": "3260"}},
		},
		{
			name: "set lifts upper DATA.ID",
			in: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "set",
				"DATA": map[string]any{"ID": "B", "x": "1"}},
			want: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "set", "ID": "B",
				"DATA": map[string]any{"ID": "B", "x": "1"}},
		},
		{
			name: "numeric id",
			in:   map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "get", "ID": json.Number("42")},
			want: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "get", "ID": "42"},
		},
		{
			name: "standard uuid",
			in:   map[string]any{"UUID": "6F9619FF-8B86-D011-B42D-00C04FC964FF", "ACTION": "list"},
			want: map[string]any{"UUID": "6f9619ff-8b86-d011-b42d-00c04fc964ff", "ACTION": "list"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_FillsUUID(t *testing.T) {
	got, err := Normalize(map[string]any{"ACTION": "list"})
	require.NoError(t, err)
	assert.Equal(t, DefaultUUID(), got["UUID"])
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	in := map[string]any{"ACTION": "set", "id": "A", "x": "1"}
	_, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ACTION": "set", "id": "A", "x": "1"}, in)
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      map[string]any
		wantErr string
	}{
		{name: "bad uuid", in: map[string]any{"UUID": "zz", "ACTION": "list"}, wantErr: "invalid UUID"},
		{name: "missing action", in: map[string]any{"UUID": "a1b2c3d4e5f6"}, wantErr: "ACTION must be"},
		{name: "subscribe", in: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "subscribe"}, wantErr: "ACTION must be"},
		{name: "get without id", in: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "get", "ID": "  "}, wantErr: "missing 'ID'"},
		{name: "set without id", in: map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "set", "x": "1"}, wantErr: "missing 'ID'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRequest(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "get.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"UUID":"a1b2c3d4e5f6","ACTION":"get","ID":7}`), 0o600))
	raw, err := LoadRequest(good)
	require.NoError(t, err)
	assert.Equal(t, json.Number("7"), raw["ID"])

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[1]`), 0o600))
	_, err = LoadRequest(bad)
	assert.Error(t, err)

	_, err = LoadRequest(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
