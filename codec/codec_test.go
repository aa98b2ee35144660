package codec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecompare/codec"
	"cachecompare/core"
)

func TestByNameSessionRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 123, time.UTC)
	in := core.Session{
		ID:        "sess_1",
		Payload:   []byte("cGF5bG9hZA=="),
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Second),
	}
	for _, name := range []string{codec.NameMsgpack, codec.NameCBOR, codec.NameJSON} {
		t.Run(name, func(t *testing.T) {
			c, err := codec.ByName[core.Session](name)
			require.NoError(t, err)
			b, err := c.Encode(in)
			require.NoError(t, err)
			out, err := c.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, in.ID, out.ID)
			assert.Equal(t, in.Payload, out.Payload)
			assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	_, err := codec.ByName[core.UserRecord]("gob")
	assert.Error(t, err)
}

func TestDefaultIsMsgpack(t *testing.T) {
	c, err := codec.ByName[core.ScoreEntry]("")
	require.NoError(t, err)
	_, ok := c.(codec.Msgpack[core.ScoreEntry])
	assert.True(t, ok)
}

func TestDecodeGarbage(t *testing.T) {
	c, err := codec.NewCBOR[core.UserRecord]()
	require.NoError(t, err)
	_, err = c.Decode([]byte{0xff, 0x00, 0x13})
	assert.Error(t, err)
}
