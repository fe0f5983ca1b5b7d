package forum

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFamilies(t *testing.T) {
	assert.Equal(t, "TENANT#acme", PartitionKey("acme"))
	assert.Equal(t, "CTX#blog#THREAD#2024-01-01T00:00:00.000Z#t1", ThreadSK("blog", "2024-01-01T00:00:00.000Z", "t1"))
	assert.Equal(t, "CTX#blog#THREAD#t1#REPLY#2024-01-01T00:00:00.000Z#r1", ReplySK("blog", "t1", "2024-01-01T00:00:00.000Z", "r1"))
	assert.Equal(t, "CTX#blog#LIKE#t1#v1", LikeSK("blog", "t1", "v1"))
	assert.Equal(t, "REF#t1", RefSK("t1"))
	assert.Equal(t, "2024-01-01T00:00:00.000Z#t1", IndexSK("2024-01-01T00:00:00.000Z", "t1"))
}

func TestPrefixesDoNotLeak(t *testing.T) {
	reply := ReplySK("blog", "t1", "2024", "r1")
	assert.True(t, strings.HasPrefix(reply, RepliesPrefix("blog", "t1")))
	assert.True(t, strings.HasPrefix(reply, MessagesPrefix("blog")))
	assert.False(t, strings.HasPrefix(reply, MessagesPrefix("blo")))
	assert.False(t, strings.HasPrefix(LikeSK("blog", "t1", "v"), MessagesPrefix("blog")))
	assert.False(t, strings.HasPrefix(LikeSK("blog", "t10", "v"), LikePrefix("blog", "t1")))

	assert.True(t, inContext(reply, "blog"))
	assert.False(t, inContext(reply, "blo"))
}

func TestCheckKeyPart(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"acme", true},
		{"blog:42", true},
		{"école", true},
		{"", false},
		{"a#b", false},
		{"acme\x00other", false},
		{"acme\tother", false},
		{"acme\u0085", false},
		{strings.Repeat("x", maxKeyPartLen), true},
		{strings.Repeat("x", maxKeyPartLen+1), false},
	}
	for _, tt := range tests {
		err := checkKeyPart("tenant", tt.in)
		if tt.ok {
			assert.NoError(t, err, "%q", tt.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidInput, "%q", tt.in)
		}
	}
}

func TestFormatTimeSortsAsTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("x", 3600))
	a := formatTime(base)
	b := formatTime(base.Add(time.Millisecond))
	c := formatTime(base.Add(10 * time.Second))

	assert.Equal(t, "2023-12-31T23:00:00.000Z", a)
	assert.Less(t, a, b)
	assert.Less(t, b, c)
	assert.Len(t, b, len(a))
}

func TestCursor(t *testing.T) {
	p := position{Activity: "2024-01-01T00:00:00.000Z", ThreadID: "t1"}
	got, err := decodeCursor(encodeCursor(p))
	require.NoError(t, err)
	assert.Equal(t, p, got)

	assert.True(t, p.before("2024-01-02T00:00:00.000Z", "t0"))
	assert.True(t, p.before(p.Activity, "t1"))
	assert.True(t, p.before(p.Activity, "t2"))
	assert.False(t, p.before(p.Activity, "t0"))
	assert.False(t, p.before("2023-12-31T00:00:00.000Z", "t9"))

	for _, bad := range []string{"", "!!", encodeCursor(position{})} {
		_, err := decodeCursor(bad)
		require.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}
