package dynamo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/lalith-99/echoforum/internal/repository"
	"github.com/lalith-99/echoforum/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestItemStoreContract runs against DynamoDB Local when
// FORUM_TEST_DYNAMODB_ENDPOINT is set (e.g. http://localhost:8000).
func TestItemStoreContract(t *testing.T) {
	endpoint := os.Getenv("FORUM_TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("FORUM_TEST_DYNAMODB_ENDPOINT not set")
	}
	t.Setenv("AWS_ACCESS_KEY_ID", "local")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "local")

	ctx := context.Background()
	s, err := Connect(ctx, "forum_items_test", "us-east-1", endpoint, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.EnsureTable(ctx))

	repotest.Run(t, s)
}

func TestChunks(t *testing.T) {
	in := make([]int, 60)
	got := chunks(in, 25)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 25)
	assert.Len(t, got[1], 25)
	assert.Len(t, got[2], 10)

	assert.Empty(t, chunks([]int{}, 25))
}

func TestDedupe(t *testing.T) {
	a := repository.Key{PK: "T#1", SK: "a"}
	b := repository.Key{PK: "T#1", SK: "b"}
	assert.Equal(t, []repository.Key{a, b}, dedupe([]repository.Key{a, b, a}))
}

func TestSetExpression(t *testing.T) {
	expr, names, values := setExpression(map[string]string{repository.AttrContent: "hello"})

	assert.Equal(t, "SET #a0 = :v0", expr)
	assert.Equal(t, map[string]string{"#a0": repository.AttrContent}, names)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "hello"}, values[":v0"])
}

func TestUnmarshalCounters(t *testing.T) {
	it, err := unmarshal(map[string]types.AttributeValue{
		"pk":         &types.AttributeValueMemberS{Value: "T#1"},
		"sk":         &types.AttributeValueMemberS{Value: "x"},
		"entityType": &types.AttributeValueMemberS{Value: repository.EntityThread},
		"likeCount":  &types.AttributeValueMemberN{Value: "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, it.LikeCount)
	assert.Zero(t, it.ReplyCount)
}

func TestResubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("until nothing is left", func(t *testing.T) {
		calls := 0
		err := resubmit(ctx, zap.NewNop(), func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("batch get: 4 keys %w", errUnprocessed)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("hard errors stop at once", func(t *testing.T) {
		boom := errors.New("access denied")
		calls := 0
		err := resubmit(ctx, zap.NewNop(), func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after the resubmit budget", func(t *testing.T) {
		calls := 0
		err := resubmit(ctx, zap.NewNop(), func() error {
			calls++
			return fmt.Errorf("batch delete: 1 requests %w", errUnprocessed)
		})
		require.ErrorIs(t, err, errUnprocessed)
		assert.Equal(t, maxResubmits+1, calls)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := resubmit(cctx, zap.NewNop(), func() error {
			return fmt.Errorf("batch get: 1 keys %w", errUnprocessed)
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}
