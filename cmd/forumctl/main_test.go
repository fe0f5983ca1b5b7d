package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/lalith-99/echoforum/internal/forum"
	"github.com/lalith-99/echoforum/internal/models"
	"github.com/lalith-99/echoforum/internal/repository"
	"github.com/lalith-99/echoforum/internal/repository/pebbledb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// keepOpen stops commands from closing the shared test table.
type keepOpen struct{ repository.ItemTable }

func (keepOpen) Close() error { return nil }

func seed(t *testing.T) (opener, *models.Thread) {
	t.Helper()
	table, err := pebbledb.OpenInMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })

	ctx := context.Background()
	svc := forum.New(table, zap.NewNop())
	author := models.Author{UserID: "u1", Role: models.RoleLearner, Name: "U"}
	th, err := svc.CreateThread(ctx, "acme", forum.NewThread{Context: "post-1", ContextType: models.ContextBlog, Author: author, Content: "hi"})
	require.NoError(t, err)
	_, err = svc.CreateReply(ctx, "acme", "post-1", th.ID, author, "reply")
	require.NoError(t, err)
	_, err = svc.CreateThread(ctx, "acme", forum.NewThread{Context: "post-2", ContextType: models.ContextBlog, Author: author, Content: "other"})
	require.NoError(t, err)

	open := func(context.Context, string, *zap.Logger) (repository.ItemTable, error) {
		return keepOpen{table}, nil
	}
	return open, th
}

func execute(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReconcileCmd(t *testing.T) {
	open, _ := seed(t)
	out, err := execute(t, open, "reconcile", "acme")
	require.NoError(t, err)

	var report models.ReconcileReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Threads)
	assert.Equal(t, 1, report.Replies)
}

func TestDumpCmd(t *testing.T) {
	open, th := seed(t)

	out, err := execute(t, open, "dump", "acme", "--context", "post-1")
	require.NoError(t, err)

	var items []repository.Item
	sc := bufio.NewScanner(bytes.NewBufferString(out))
	for sc.Scan() {
		var it repository.Item
		require.NoError(t, json.Unmarshal(sc.Bytes(), &it))
		items = append(items, it)
	}
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, "post-1", it.Context)
	}
	assert.ElementsMatch(t,
		[]string{repository.EntityThread, repository.EntityReply},
		[]string{items[0].EntityType, items[1].EntityType})
	assert.Contains(t, []string{items[0].ID, items[1].ID}, th.ID)
}

func TestPurgeCmd(t *testing.T) {
	open, _ := seed(t)

	_, err := execute(t, open, "purge-tenant", "acme")
	require.Error(t, err)

	out, err := execute(t, open, "purge-tenant", "acme", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "of tenant acme")

	out, err = execute(t, open, "dump", "acme")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestArgsRequired(t *testing.T) {
	open, _ := seed(t)
	_, err := execute(t, open, "reconcile")
	require.Error(t, err)
}
