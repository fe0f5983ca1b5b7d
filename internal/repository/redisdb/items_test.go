package redisdb

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lalith-99/echoforum/internal/repository"
	"github.com/lalith-99/echoforum/internal/repository/repotest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) (*ItemStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zap.NewNop())
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestItemStoreContract(t *testing.T) {
	s, _ := newStore(t)
	repotest.Run(t, s)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Connect(context.Background(), "not a url", zap.NewNop())
	require.Error(t, err)
}

func TestLayout(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	it := &repository.Item{
		PK:         "T#1",
		SK:         "CTX#c#THREAD#x",
		GSI1PK:     "G#1",
		GSI1SK:     "2024#x",
		EntityType: repository.EntityThread,
		ID:         "x",
		ReplyCount: 2,
	}
	require.NoError(t, s.Put(ctx, it))

	assert.Equal(t, "2", mr.HGet(itemKey(it.Key()), repository.AttrReplyCount))
	assert.Equal(t, "", mr.HGet(itemKey(it.Key()), repository.AttrLikeCount))

	members, err := mr.ZMembers(keysKey("T#1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"CTX#c#THREAD#x"}, members)

	require.NoError(t, s.Delete(ctx, it.Key()))
	assert.False(t, mr.Exists(itemKey(it.Key())))
	assert.False(t, mr.Exists(gsiPrefix+"G#1"))
}

func TestFieldsRoundTrip(t *testing.T) {
	in := &repository.Item{PK: "p", SK: "s", EntityType: repository.EntityReply, LikeCount: 7, Content: "hi"}
	fields, err := toFields(in)
	require.NoError(t, err)

	m := make(map[string]string, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		m[fields[i].(string)] = fields[i+1].(string)
	}
	assert.Equal(t, "7", m[repository.AttrLikeCount])
	_, hasReplies := m[repository.AttrReplyCount]
	assert.False(t, hasReplies)

	out, err := fromFields(m)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = fromFields(map[string]string{repository.AttrLikeCount: "x", "pk": "p"})
	require.Error(t, err)
}
