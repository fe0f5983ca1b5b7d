// Package repotest holds the behaviour every repository.ItemTable backend
// must share. Backend packages call Run from their own tests.
package repotest

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/echoforum/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises table against the ItemTable contract. Each subtest uses its
// own random partition, so a shared external table is fine.
func Run(t *testing.T, table repository.ItemTable) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, table repository.ItemTable, pk string)
	}{
		{"get missing", testGetMissing},
		{"put and get", testPutGet},
		{"put replaces", testPutReplaces},
		{"put if absent", testPutIfAbsent},
		{"update", testUpdate},
		{"update missing", testUpdateMissing},
		{"update rejects unknown attribute", testUpdateUnknownAttr},
		{"add counter", testAdd},
		{"add missing item", testAddMissing},
		{"query prefix", testQueryPrefix},
		{"query whole partition", testQueryPartition},
		{"tenant isolation", testIsolation},
		{"query index", testQueryIndex},
		{"delete", testDelete},
		{"batch get", testBatchGet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, table, "T#"+uuid.NewString())
		})
	}
}

func thread(pk, sk, id string) *repository.Item {
	return &repository.Item{
		PK:         pk,
		SK:         sk,
		EntityType: repository.EntityThread,
		ID:         id,
		TenantID:   pk,
		Context:    "blog:42",
		AuthorID:   "u1",
		AuthorRole: "learner",
		AuthorName: "Ada",
		Content:    "hello",
		CreatedAt:  "2024-05-01T10:00:00.000Z",
		UpdatedAt:  "2024-05-01T10:00:00.000Z",
	}
}

func testGetMissing(t *testing.T, table repository.ItemTable, pk string) {
	_, err := table.Get(context.Background(), repository.Key{PK: pk, SK: "nope"})
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testPutGet(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	in := thread(pk, "CTX#blog:42#THREAD#a", "a")
	in.SourceTitle = "Post"
	in.ReplyCount = 3
	require.NoError(t, table.Put(ctx, in))

	got, err := table.Get(ctx, in.Key())
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func testPutReplaces(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	in := thread(pk, "CTX#c#THREAD#a", "a")
	require.NoError(t, table.Put(ctx, in))

	in.Content = "second"
	require.NoError(t, table.Put(ctx, in))

	got, err := table.Get(ctx, in.Key())
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)
}

func testPutIfAbsent(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	like := &repository.Item{
		PK:         pk,
		SK:         "CTX#c#LIKE#m1#v1",
		EntityType: repository.EntityLike,
		TenantID:   pk,
		MessageID:  "m1",
		VisitorID:  "v1",
		LikedAt:    "2024-05-01T10:00:00.000Z",
	}
	require.NoError(t, table.PutIfAbsent(ctx, like))

	dup := *like
	dup.LikedAt = "2024-05-02T10:00:00.000Z"
	require.ErrorIs(t, table.PutIfAbsent(ctx, &dup), repository.ErrAlreadyExists)

	got, err := table.Get(ctx, like.Key())
	require.NoError(t, err)
	assert.Equal(t, like.LikedAt, got.LikedAt)
}

func testUpdate(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	in := thread(pk, "CTX#c#THREAD#a", "a")
	in.LikeCount = 2
	require.NoError(t, table.Put(ctx, in))

	err := table.Update(ctx, in.Key(), map[string]string{
		repository.AttrContent:   "edited",
		repository.AttrEditedAt:  "2024-05-03T00:00:00.000Z",
		repository.AttrUpdatedAt: "2024-05-03T00:00:00.000Z",
	})
	require.NoError(t, err)

	got, err := table.Get(ctx, in.Key())
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)
	assert.Equal(t, "2024-05-03T00:00:00.000Z", got.EditedAt)
	assert.Equal(t, "2024-05-03T00:00:00.000Z", got.UpdatedAt)
	assert.Equal(t, 2, got.LikeCount, "counters survive updates")
	assert.Equal(t, in.AuthorName, got.AuthorName)
}

func testUpdateMissing(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	key := repository.Key{PK: pk, SK: "CTX#c#THREAD#ghost"}
	err := table.Update(ctx, key, map[string]string{repository.AttrContent: "x"})
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = table.Get(ctx, key)
	require.ErrorIs(t, err, repository.ErrNotFound, "update must not create items")
}

func testUpdateUnknownAttr(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	in := thread(pk, "CTX#c#THREAD#a", "a")
	require.NoError(t, table.Put(ctx, in))

	err := table.Update(ctx, in.Key(), map[string]string{"pk": "other"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}

func testAdd(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	in := thread(pk, "CTX#c#THREAD#a", "a")
	require.NoError(t, table.Put(ctx, in))
	key := in.Key()

	// counter attribute starts absent
	require.NoError(t, table.Add(ctx, key, repository.AttrReplyCount, 1))
	require.NoError(t, table.Add(ctx, key, repository.AttrReplyCount, 1))
	require.NoError(t, table.Add(ctx, key, repository.AttrLikeCount, 1))

	got, err := table.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ReplyCount)
	assert.Equal(t, 1, got.LikeCount)

	require.NoError(t, table.Add(ctx, key, repository.AttrLikeCount, -1))
	require.ErrorIs(t, table.Add(ctx, key, repository.AttrLikeCount, -1), repository.ErrGuardFailed)

	got, err = table.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, got.LikeCount)
	assert.Equal(t, 2, got.ReplyCount)

	require.Error(t, table.Add(ctx, key, repository.AttrContent, 1))
}

func testAddMissing(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	key := repository.Key{PK: pk, SK: "CTX#c#THREAD#ghost"}
	require.ErrorIs(t, table.Add(ctx, key, repository.AttrReplyCount, 1), repository.ErrNotFound)

	_, err := table.Get(ctx, key)
	require.ErrorIs(t, err, repository.ErrNotFound, "add must not create items")
}

func testQueryPrefix(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	for _, sk := range []string{
		"CTX#a#THREAD#2024-01-02T00:00:00.000Z#t2",
		"CTX#a#THREAD#2024-01-01T00:00:00.000Z#t1",
		"CTX#a#THREAD#t1#REPLY#2024-01-03T00:00:00.000Z#r1",
		"CTX#a#LIKE#t1#v1",
		"CTX#ab#THREAD#2024-01-01T00:00:00.000Z#t3",
		"REF#t1",
	} {
		require.NoError(t, table.Put(ctx, thread(pk, sk, sk)))
	}

	got, err := table.Query(ctx, pk, "CTX#a#THREAD#")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CTX#a#THREAD#2024-01-01T00:00:00.000Z#t1",
		"CTX#a#THREAD#2024-01-02T00:00:00.000Z#t2",
		"CTX#a#THREAD#t1#REPLY#2024-01-03T00:00:00.000Z#r1",
	}, sks(got))

	got, err = table.Query(ctx, pk, "CTX#a#")
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = table.Query(ctx, pk, "CTX#zzz#")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func testQueryPartition(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	for _, sk := range []string{"b", "a", "c"} {
		require.NoError(t, table.Put(ctx, thread(pk, sk, sk)))
	}
	got, err := table.Query(ctx, pk, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, sks(got))
}

func testIsolation(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	other := pk + "-other"
	require.NoError(t, table.Put(ctx, thread(pk, "CTX#c#THREAD#1", "1")))
	require.NoError(t, table.Put(ctx, thread(other, "CTX#c#THREAD#1", "1")))
	require.NoError(t, table.Put(ctx, thread(other, "CTX#c#THREAD#2", "2")))

	got, err := table.Query(ctx, pk, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pk, got[0].PK)

	require.NoError(t, table.Delete(ctx, repository.Key{PK: other, SK: "CTX#c#THREAD#1"}))
	_, err = table.Get(ctx, repository.Key{PK: pk, SK: "CTX#c#THREAD#1"})
	require.NoError(t, err)
}

func testQueryIndex(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	gsi := "GSI#" + pk
	for i, ts := range []string{
		"2024-01-02T00:00:00.000Z",
		"2024-01-01T00:00:00.000Z",
		"2024-01-03T00:00:00.000Z",
	} {
		id := string(rune('a' + i))
		it := thread(pk, "CTX#c#THREAD#"+ts+"#"+id, id)
		it.GSI1PK = gsi
		it.GSI1SK = ts + "#" + id
		it.CreatedAt = ts
		require.NoError(t, table.Put(ctx, it))
	}
	require.NoError(t, table.Put(ctx, thread(pk, "CTX#c#THREAD#t1#REPLY#x#r", "r")))

	got, err := table.QueryIndex(ctx, gsi, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(got))

	got, err = table.QueryIndex(ctx, gsi, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(got))

	require.NoError(t, table.Delete(ctx, repository.Key{PK: pk, SK: "CTX#c#THREAD#2024-01-03T00:00:00.000Z#c"}))
	got, err = table.QueryIndex(ctx, gsi, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func testDelete(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	a := thread(pk, "CTX#c#THREAD#a", "a")
	b := thread(pk, "CTX#c#THREAD#b", "b")
	require.NoError(t, table.Put(ctx, a))
	require.NoError(t, table.Put(ctx, b))

	require.NoError(t, table.Delete(ctx, a.Key(), b.Key(), repository.Key{PK: pk, SK: "missing"}))
	require.NoError(t, table.Delete(ctx))

	got, err := table.Query(ctx, pk, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testBatchGet(t *testing.T, table repository.ItemTable, pk string) {
	ctx := context.Background()
	a := thread(pk, "CTX#c#LIKE#m1#v1", "a")
	b := thread(pk, "CTX#c#LIKE#m2#v1", "b")
	require.NoError(t, table.Put(ctx, a))
	require.NoError(t, table.Put(ctx, b))

	got, err := table.BatchGet(ctx, []repository.Key{
		a.Key(),
		{PK: pk, SK: "CTX#c#LIKE#m3#v1"},
		b.Key(),
	})
	require.NoError(t, err)
	out := ids(got)
	sort.Strings(out)
	assert.Equal(t, []string{"a", "b"}, out)

	got, err = table.BatchGet(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func sks(items []*repository.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.SK
	}
	return out
}

func ids(items []*repository.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
