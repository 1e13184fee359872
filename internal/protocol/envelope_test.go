package protocol

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpstore/internal/storage"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func sampleRecord() storage.Record {
	return storage.NewRecord("UADER-FCyT-IS2", map[string]string{"cp": "3260", "sede": "FCyT"})
}

func TestEnvelope_WireFormat(t *testing.T) {
	record, err := OK("a1b2c3d4e5f6", sampleRecord())
	require.NoError(t, err)
	notFound, err := OK("a1b2c3d4e5f6", nil)
	require.NoError(t, err)
	ack, err := OK("a1b2c3d4e5f6", SubscribeAck{Action: ActionSubscribe, Session: "5f1c2a9e-0d7b-4c3e-9a61-2b8f4e7d1c05"})
	require.NoError(t, err)

	tests := []struct {
		name string
		msg  any
	}{
		{"response_record", record},
		{"response_not_found", notFound},
		{"response_error", Fail("", "missing 'UUID'")},
		{"response_subscribe", ack},
		{"notification", NewNotification(sampleRecord())},
	}

	g := newGoldie(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := Encode(tt.msg)
			require.NoError(t, err)
			g.Assert(t, tt.name, body)
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"UUID":"a1b2c3d4e5f6","STATUS":"ok","RESULT":{"id":"A","x":"1"}}`))
	require.NoError(t, err)
	assert.True(t, resp.IsOK())

	var rec storage.Record
	require.NoError(t, resp.DecodeResult(&rec))
	assert.Equal(t, "A", rec.ID)
	assert.Equal(t, "1", rec.Fields["x"])

	_, err = DecodeResponse([]byte(`{"UUID":"x","STATUS":"maybe"}`))
	assert.Error(t, err)
}

func TestDecodeNotification(t *testing.T) {
	n, err := DecodeNotification([]byte(`{"EVENT":"notify","RECORD":{"id":"A","x":"1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "A", n.Record.ID)

	_, err = DecodeNotification([]byte(`{"UUID":"x","STATUS":"ok"}`))
	assert.Error(t, err)
}
