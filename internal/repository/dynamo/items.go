// Package dynamo stores forum items in a DynamoDB table keyed by
// (pk, sk) with one global secondary index GSI1 on (gsi1pk, gsi1sk).
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/codeGROOVE-dev/retry"
	"github.com/lalith-99/echoforum/internal/repository"
	"go.uber.org/zap"
)

const (
	IndexName = "GSI1"

	batchGetSize   = 100
	batchWriteSize = 25
	maxResubmits   = 5
	resubmitDelay  = 50 * time.Millisecond
)

type ItemStore struct {
	client *dynamodb.Client
	table  string
	logger *zap.Logger
}

func New(client *dynamodb.Client, table string, logger *zap.Logger) *ItemStore {
	return &ItemStore{client: client, table: table, logger: logger}
}

// Connect builds a client from the default AWS credential chain. A non-empty
// endpoint points it at DynamoDB Local or another compatible server.
func Connect(ctx context.Context, table, region, endpoint string, logger *zap.Logger) (*ItemStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}); err != nil {
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("describe table: %w", err)
		}
	}

	logger.Info("dynamodb item store connected", zap.String("table", table), zap.String("region", region))
	return New(client, table, logger), nil
}

// EnsureTable creates the table with on-demand billing and waits until it is
// active. An existing table is left alone.
func (s *ItemStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("gsi1pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("gsi1sk"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String(IndexName),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("gsi1pk"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("gsi1sk"), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("create table: %w", err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no connections that need closing.
func (s *ItemStore) Close() error {
	return nil
}

func keyAttrs(k repository.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: k.PK},
		"sk": &types.AttributeValueMemberS{Value: k.SK},
	}
}

func (s *ItemStore) Get(ctx context.Context, key repository.Key) (*repository.Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttrs(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if out.Item == nil {
		return nil, repository.ErrNotFound
	}
	return unmarshal(out.Item)
}

func (s *ItemStore) BatchGet(ctx context.Context, keys []repository.Key) ([]*repository.Item, error) {
	items := make([]*repository.Item, 0, len(keys))

	for _, chunk := range chunks(dedupe(keys), batchGetSize) {
		req := make([]map[string]types.AttributeValue, len(chunk))
		for i, k := range chunk {
			req[i] = keyAttrs(k)
		}
		pending := map[string]types.KeysAndAttributes{
			s.table: {Keys: req, ConsistentRead: aws.Bool(true)},
		}

		err := resubmit(ctx, s.logger, func() error {
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch get: %w", err)
			}
			for _, raw := range out.Responses[s.table] {
				it, err := unmarshal(raw)
				if err != nil {
					return err
				}
				items = append(items, it)
			}
			pending = out.UnprocessedKeys
			if n := len(pending[s.table].Keys); n > 0 {
				return fmt.Errorf("batch get: %d keys %w", n, errUnprocessed)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *ItemStore) Put(ctx context.Context, item *repository.Item) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *ItemStore) PutIfAbsent(ctx context.Context, item *repository.Item) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *ItemStore) Update(ctx context.Context, key repository.Key, attrs map[string]string) error {
	if err := repository.CheckUpdate(attrs); err != nil {
		return err
	}
	expr, names, values := setExpression(attrs)

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyAttrs(key),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(pk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (s *ItemStore) Add(ctx context.Context, key repository.Key, attr string, delta int) error {
	if err := repository.CheckCounter(attr); err != nil {
		return err
	}
	cond := "attribute_exists(pk)"
	values := map[string]types.AttributeValue{
		":zero":  &types.AttributeValueMemberN{Value: "0"},
		":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
	}
	if delta < 0 {
		// a missing counter reads as 0 and fails the comparison, as it should
		cond += " AND #c >= :need"
		values[":need"] = &types.AttributeValueMemberN{Value: strconv.Itoa(-delta)}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.table),
		Key:                                 keyAttrs(key),
		UpdateExpression:                    aws.String("SET #c = if_not_exists(#c, :zero) + :delta"),
		ConditionExpression:                 aws.String(cond),
		ExpressionAttributeNames:            map[string]string{"#c": attr},
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if len(condErr.Item) == 0 {
				return repository.ErrNotFound
			}
			return repository.ErrGuardFailed
		}
		return fmt.Errorf("add counter: %w", err)
	}
	return nil
}

func (s *ItemStore) Delete(ctx context.Context, keys ...repository.Key) error {
	for _, chunk := range chunks(dedupe(keys), batchWriteSize) {
		reqs := make([]types.WriteRequest, len(chunk))
		for i, k := range chunk {
			reqs[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: keyAttrs(k)}}
		}
		pending := map[string][]types.WriteRequest{s.table: reqs}

		err := resubmit(ctx, s.logger, func() error {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch delete: %w", err)
			}
			pending = out.UnprocessedItems
			if n := len(pending[s.table]); n > 0 {
				return fmt.Errorf("batch delete: %d requests %w", n, errUnprocessed)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *ItemStore) Query(ctx context.Context, pk, skPrefix string) ([]*repository.Item, error) {
	cond := "pk = :pk"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	if skPrefix != "" {
		cond += " AND begins_with(sk, :prefix)"
		values[":prefix"] = &types.AttributeValueMemberS{Value: skPrefix}
	}

	return s.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	}, 0)
}

// QueryIndex reads GSI1, which is eventually consistent.
func (s *ItemStore) QueryIndex(ctx context.Context, gsiPK string, limit int) ([]*repository.Item, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(IndexName),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: gsiPK},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	return s.query(ctx, input, limit)
}

// query pages through results until they run out or limit items are read.
func (s *ItemStore) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]*repository.Item, error) {
	items := make([]*repository.Item, 0)
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query items: %w", err)
		}
		for _, raw := range page.Items {
			it, err := unmarshal(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
			if limit > 0 && len(items) == limit {
				return items, nil
			}
		}
	}
	return items, nil
}

func unmarshal(raw map[string]types.AttributeValue) (*repository.Item, error) {
	var it repository.Item
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &it, nil
}

// setExpression builds "SET #a0 = :v0, ..." with placeholder maps.
func setExpression(attrs map[string]string) (string, map[string]string, map[string]types.AttributeValue) {
	clauses := make([]string, 0, len(attrs))
	names := make(map[string]string, len(attrs)+1)
	values := make(map[string]types.AttributeValue, len(attrs))
	i := 0
	for name, value := range attrs {
		n, v := fmt.Sprintf("#a%d", i), fmt.Sprintf(":v%d", i)
		names[n] = name
		values[v] = &types.AttributeValueMemberS{Value: value}
		clauses = append(clauses, n+" = "+v)
		i++
	}
	return "SET " + strings.Join(clauses, ", "), names, values
}

func chunks[T any](s []T, size int) [][]T {
	var out [][]T
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}

// dedupe drops repeated keys; batch APIs reject duplicates in one request.
func dedupe(keys []repository.Key) []repository.Key {
	seen := make(map[repository.Key]struct{}, len(keys))
	out := make([]repository.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// errUnprocessed marks a batch call that DynamoDB only partly applied,
// usually because the table was throttled.
var errUnprocessed = errors.New("left unprocessed")

// resubmit runs send until it no longer reports unprocessed requests, backing
// off between rounds. Any other error ends the loop at once; the SDK has
// already retried transport failures by then.
func resubmit(ctx context.Context, logger *zap.Logger, send func() error) error {
	var last error
	err := retry.Do(
		func() error {
			last = send()
			return last
		},
		retry.Attempts(maxResubmits+1),
		retry.Delay(resubmitDelay),
		retry.MaxDelay(2*time.Second),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errUnprocessed)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("resubmitting unprocessed batch", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if last != nil {
		return last
	}
	return err
}
