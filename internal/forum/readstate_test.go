package forum

import (
	"testing"

	"github.com/lalith-99/echoforum/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dashboardIDs(page *models.DashboardPage) []string {
	ids := make([]string, len(page.Threads))
	for i, th := range page.Threads {
		ids[i] = th.ID
	}
	return ids
}

func TestDashboardOrderAndUnread(t *testing.T) {
	f := newFixture(t)
	a := f.thread(t, "blog-1", "a")   // t1
	b := f.thread(t, "course-1", "b") // t2
	c := f.thread(t, "blog-2", "c")   // t3
	f.reply(t, a, "a1")               // t4

	ok, err := f.svc.MarkThreadAsRead(f.ctx, tenant, b.ID) // t5
	require.NoError(t, err)
	require.True(t, ok)
	f.reply(t, b, "b1") // t6

	page, err := f.svc.GetAllThreadsForTenant(f.ctx, tenant, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Cursor)
	require.Equal(t, []string{b.ID, a.ID, c.ID}, dashboardIDs(page))

	gotB, gotA, gotC := page.Threads[0], page.Threads[1], page.Threads[2]

	assert.False(t, gotB.IsNew)
	assert.True(t, gotB.HasNewReplies)
	assert.Equal(t, 1, gotB.NewReplyCount)
	assert.Equal(t, gotB.Replies[0].CreatedAt, gotB.LastActivityAt)

	assert.True(t, gotA.IsNew)
	assert.Equal(t, 1, gotA.NewReplyCount)

	assert.True(t, gotC.IsNew)
	assert.False(t, gotC.HasNewReplies)
	assert.Equal(t, c.CreatedAt, gotC.LastActivityAt)
}

func TestMarkReadClearsUnread(t *testing.T) {
	f := newFixture(t)
	th := f.thread(t, "blog-1", "a")
	f.reply(t, th, "r1")
	f.reply(t, th, "r2")

	_, err := f.svc.MarkThreadAsRead(f.ctx, tenant, th.ID)
	require.NoError(t, err)
	f.reply(t, th, "r3")

	page, err := f.svc.GetAllThreadsForTenant(f.ctx, tenant, 0, "")
	require.NoError(t, err)
	require.Len(t, page.Threads, 1)
	d := page.Threads[0]
	readAt := d.ExpertLastReadAt
	for _, r := range d.Replies {
		assert.Equal(t, r.Content == "r3", r.CreatedAt > readAt, r.Content)
	}
	assert.Equal(t, 1, d.NewReplyCount)

	_, err = f.svc.MarkThreadAsRead(f.ctx, tenant, th.ID)
	require.NoError(t, err)
	page, err = f.svc.GetAllThreadsForTenant(f.ctx, tenant, 0, "")
	require.NoError(t, err)
	assert.Greater(t, page.Threads[0].ExpertLastReadAt, readAt)
	assert.False(t, page.Threads[0].HasNewReplies)
	assert.Zero(t, page.Threads[0].NewReplyCount)
}

func TestDashboardPagination(t *testing.T) {
	f := newFixture(t)
	var want []string
	for i := 0; i < 7; i++ {
		th := f.thread(t, "blog-1", "x")
		want = append([]string{th.ID}, want...)
	}

	var got []string
	cursor := ""
	pages := 0
	for {
		page, err := f.svc.GetAllThreadsForTenant(f.ctx, tenant, 3, cursor)
		require.NoError(t, err)
		got = append(got, dashboardIDs(page)...)
		pages++
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 3, pages)
}

func TestDashboardBadCursor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetAllThreadsForTenant(f.ctx, tenant, 10, "%%%")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestMarkThreadsAsReadPartial(t *testing.T) {
	f := newFixture(t)
	a := f.thread(t, "blog-1", "a")
	b := f.thread(t, "blog-2", "b")
	r := f.reply(t, a, "r")

	n, err := f.svc.MarkThreadsAsRead(f.ctx, tenant, []string{a.ID, "missing", b.ID, a.ID, r.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NotEmpty(t, f.get(t, a).ExpertLastReadAt)
	assert.NotEmpty(t, f.get(t, b).ExpertLastReadAt)

	ok, err := f.svc.MarkThreadAsRead(f.ctx, tenant, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.MarkThreadsAsRead(f.ctx, tenant, make([]string, maxBatchIDs+1))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnreadClassification(t *testing.T) {
	reply := func(at string) models.Reply { return models.Reply{CreatedAt: at} }
	th := models.ThreadWithReplies{
		Thread: models.Thread{CreatedAt: "2024-01-01T00:00:00.000Z", ExpertLastReadAt: "2024-01-02T00:00:00.000Z"},
		Replies: []models.Reply{
			reply("2024-01-01T12:00:00.000Z"),
			reply("2024-01-02T00:00:00.000Z"),
			reply("2024-01-03T00:00:00.000Z"),
		},
	}

	d := unread(th)
	assert.False(t, d.IsNew)
	assert.Equal(t, 1, d.NewReplyCount)
	assert.Equal(t, "2024-01-03T00:00:00.000Z", d.LastActivityAt)
}
