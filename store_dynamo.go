package replaycache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/goforj/replaycache/kvcore"
)

// DynamoAPI captures the subset of DynamoDB client methods used by the store.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Item attributes: k (key), t (kind), v (binary string value),
// l (list of binary values), ea (expiry in unix ms).
type dynamoStore struct {
	client DynamoAPI
	table  string
	base   kvcore.BaseConfig
}

const (
	dynamoEnsureTableMaxAttempts = 20
	dynamoEnsureTableRetryDelay  = 150 * time.Millisecond
	dynamoBatchWriteLimit        = 25
	dynamoBatchMaxAttempts       = 6
	dynamoBatchRetryDelay        = 20 * time.Millisecond
	dynamoMaxCASAttempts         = 16
)

func newDynamoStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	if cfg.DynamoClient == nil {
		client, err := newDynamoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg.DynamoClient = client
	}
	if err := ensureDynamoTable(ctx, cfg.DynamoClient, cfg.DynamoTable); err != nil {
		return nil, err
	}
	return &dynamoStore{
		client: cfg.DynamoClient,
		table:  cfg.DynamoTable,
		base:   kvcore.BaseConfig{Prefix: cfg.Prefix},
	}, nil
}

func newDynamoClient(ctx context.Context, cfg StoreConfig) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.DynamoRegion)}
	if cfg.DynamoEndpoint != "" {
		// local endpoints accept any static credentials.
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	}), nil
}

func (s *dynamoStore) Driver() Driver { return DriverDynamo }

func (s *dynamoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	item, ok, err := s.getItem(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if dynamoKind(item) != entryKindString {
		return nil, false, kvcore.ErrWrongType
	}
	body, ok := dynamoScalar(item)
	if !ok {
		return nil, false, errors.New("dynamodb item missing string value")
	}
	return body, true, nil
}

func (s *dynamoStore) Set(ctx context.Context, key string, value []byte) error {
	return s.putString(ctx, key, value, 0)
}

func (s *dynamoStore) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if ttl <= 0 {
		return kvcore.ErrInvalidTTL
	}
	return s.putString(ctx, key, value, time.Now().Add(ttl).UnixMilli())
}

func (s *dynamoStore) putString(ctx context.Context, key string, value []byte, expiresAt int64) error {
	item := map[string]types.AttributeValue{
		"k": &types.AttributeValueMemberS{Value: s.base.Key(key)},
		"t": &types.AttributeValueMemberS{Value: entryKindString},
		"v": &types.AttributeValueMemberB{Value: cloneBytes(value)},
	}
	if expiresAt > 0 {
		item["ea"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)}
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return err
}

// Incr rewrites the decimal string with a compare-and-swap on the previous
// value. An expired item is replaced as if the key were absent.
func (s *dynamoStore) Incr(ctx context.Context, key string) (int64, error) {
	for attempt := 0; attempt < dynamoMaxCASAttempts; attempt++ {
		raw, err := s.rawItem(ctx, key)
		if err != nil {
			return 0, err
		}
		next := int64(1)
		item := map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: s.base.Key(key)},
			"t": &types.AttributeValueMemberS{Value: entryKindString},
		}
		input := &dynamodb.PutItemInput{TableName: aws.String(s.table), Item: item}
		switch {
		case raw == nil:
			input.ConditionExpression = aws.String("attribute_not_exists(k)")
		case dynamoExpired(raw):
			input.ConditionExpression = aws.String("ea = :ea")
			input.ExpressionAttributeValues = map[string]types.AttributeValue{":ea": raw["ea"]}
		default:
			if dynamoKind(raw) != entryKindString {
				return 0, kvcore.ErrWrongType
			}
			old, ok := raw["v"].(*types.AttributeValueMemberB)
			if !ok {
				return 0, errors.New("dynamodb item missing string value")
			}
			current, err := strconv.ParseInt(string(old.Value), 10, 64)
			if err != nil {
				return 0, kvcore.ErrNotInteger
			}
			next = current + 1
			if ea, ok := raw["ea"]; ok {
				item["ea"] = ea
			}
			input.ConditionExpression = aws.String("v = :old")
			input.ExpressionAttributeValues = map[string]types.AttributeValue{":old": old}
		}
		item["v"] = &types.AttributeValueMemberB{Value: []byte(strconv.FormatInt(next, 10))}
		if _, err := s.client.PutItem(ctx, input); err != nil {
			if isConditionalCheckFailed(err) {
				continue
			}
			return 0, err
		}
		return next, nil
	}
	return 0, errors.New("dynamodb increment exceeded retry limit")
}

func (s *dynamoStore) RPush(ctx context.Context, key string, value []byte) (int64, error) {
	update := func() (*dynamodb.UpdateItemOutput, error) {
		return s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.table),
			Key:                 s.itemKey(key),
			UpdateExpression:    aws.String("SET t = :l, l = list_append(if_not_exists(l, :empty), :vals)"),
			ConditionExpression: aws.String("attribute_not_exists(k) OR t = :l"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":l":     &types.AttributeValueMemberS{Value: entryKindList},
				":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
				":vals": &types.AttributeValueMemberL{Value: []types.AttributeValue{
					&types.AttributeValueMemberB{Value: cloneBytes(value)},
				}},
			},
			ReturnValues: types.ReturnValueUpdatedNew,
		})
	}
	out, err := update()
	if err != nil && isConditionalCheckFailed(err) {
		// an expired string may occupy the key; treat it as absent.
		raw, getErr := s.rawItem(ctx, key)
		if getErr != nil {
			return 0, getErr
		}
		if raw != nil && !dynamoExpired(raw) && dynamoKind(raw) != entryKindList {
			return 0, kvcore.ErrWrongType
		}
		if raw != nil && dynamoExpired(raw) {
			if _, delErr := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                 aws.String(s.table),
				Key:                       s.itemKey(key),
				ConditionExpression:       aws.String("ea = :ea"),
				ExpressionAttributeValues: map[string]types.AttributeValue{":ea": raw["ea"]},
			}); delErr != nil && !isConditionalCheckFailed(delErr) {
				return 0, delErr
			}
		}
		out, err = update()
	}
	if err != nil {
		if isConditionalCheckFailed(err) {
			return 0, kvcore.ErrWrongType
		}
		return 0, err
	}
	list, ok := out.Attributes["l"].(*types.AttributeValueMemberL)
	if !ok {
		return 0, errors.New("dynamodb push returned no list")
	}
	return int64(len(list.Value)), nil
}

func (s *dynamoStore) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	item, ok, err := s.getItem(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	if dynamoKind(item) != entryKindList {
		return nil, kvcore.ErrWrongType
	}
	list, _ := item["l"].(*types.AttributeValueMemberL)
	if list == nil {
		return [][]byte{}, nil
	}
	lo, hi, ok := kvcore.NormalizeRange(int64(len(list.Value)), start, stop)
	if !ok {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, hi-lo)
	for _, av := range list.Value[lo:hi] {
		b, isBinary := av.(*types.AttributeValueMemberB)
		if !isBinary {
			return nil, errors.New("dynamodb list element is not binary")
		}
		out = append(out, cloneBytes(b.Value))
	}
	return out, nil
}

// Flush deletes every item under the configured prefix, or the whole table
// when no prefix is set.
func (s *dynamoStore) Flush(ctx context.Context) error {
	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:            aws.String(s.table),
			ProjectionExpression: aws.String("k"),
			ExclusiveStartKey:    lastEvaluatedKey,
		}
		if s.base.Prefix != "" {
			input.FilterExpression = aws.String("begins_with(k, :p)")
			input.ExpressionAttributeValues = map[string]types.AttributeValue{
				":p": &types.AttributeValueMemberS{Value: s.base.Prefix + ":"},
			}
		}
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return err
		}
		writes := make([]types.WriteRequest, 0, len(out.Items))
		for _, item := range out.Items {
			if k, ok := item["k"].(*types.AttributeValueMemberS); ok {
				writes = append(writes, types.WriteRequest{
					DeleteRequest: &types.DeleteRequest{
						Key: map[string]types.AttributeValue{"k": k},
					},
				})
			}
		}
		for len(writes) > 0 {
			n := len(writes)
			if n > dynamoBatchWriteLimit {
				n = dynamoBatchWriteLimit
			}
			if err := s.batchDelete(ctx, writes[:n]); err != nil {
				return err
			}
			writes = writes[n:]
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		lastEvaluatedKey = out.LastEvaluatedKey
	}
}

// batchDelete sends one batch and resends whatever DynamoDB reports as
// unprocessed, backing off between attempts.
func (s *dynamoStore) batchDelete(ctx context.Context, writes []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.table: writes}
	delay := dynamoBatchRetryDelay
	for attempt := 0; attempt < dynamoBatchMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems[s.table]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return fmt.Errorf("dynamodb flush: %d deletes still unprocessed after %d attempts", len(pending[s.table]), dynamoBatchMaxAttempts)
}

func (s *dynamoStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: s.base.Key(key)}}
}

// getItem returns the live item for key. Expired items are reported absent.
func (s *dynamoStore) getItem(ctx context.Context, key string) (map[string]types.AttributeValue, bool, error) {
	item, err := s.rawItem(ctx, key)
	if err != nil || item == nil || dynamoExpired(item) {
		return nil, false, err
	}
	return item, true, nil
}

// rawItem returns the stored item for key, expired or not.
func (s *dynamoStore) rawItem(ctx context.Context, key string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return out.Item, nil
}

func dynamoKind(item map[string]types.AttributeValue) string {
	if t, ok := item["t"].(*types.AttributeValueMemberS); ok {
		return t.Value
	}
	return entryKindString
}

func dynamoScalar(item map[string]types.AttributeValue) ([]byte, bool) {
	v, ok := item["v"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false
	}
	return cloneBytes(v.Value), true
}

func dynamoExpired(item map[string]types.AttributeValue) bool {
	av, ok := item["ea"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	exp, err := strconv.ParseInt(av.Value, 10, 64)
	if err != nil {
		return false
	}
	return time.Now().UnixMilli() > exp
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func ensureDynamoTable(ctx context.Context, client DynamoAPI, table string) error {
	var lastErr error
	for attempt := 1; attempt <= dynamoEnsureTableMaxAttempts; attempt++ {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err == nil {
			return nil
		}

		var rnfe *types.ResourceNotFoundException
		if errors.As(err, &rnfe) {
			_, createErr := client.CreateTable(ctx, &dynamodb.CreateTableInput{
				TableName: aws.String(table),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("k"), KeyType: types.KeyTypeHash},
				},
				AttributeDefinitions: []types.AttributeDefinition{
					{AttributeName: aws.String("k"), AttributeType: types.ScalarAttributeTypeS},
				},
				BillingMode: types.BillingModePayPerRequest,
			})
			if createErr == nil {
				return nil
			}
			var inUse *types.ResourceInUseException
			if errors.As(createErr, &inUse) {
				return nil
			}
			if !isDynamoStartupRetryable(createErr) {
				return createErr
			}
			lastErr = createErr
		} else {
			if !isDynamoStartupRetryable(err) {
				return err
			}
			lastErr = err
		}

		if attempt == dynamoEnsureTableMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dynamoEnsureTableRetryDelay):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("dynamo table ensure failed")
	}
	return fmt.Errorf("ensure dynamo table %q: %w", table, lastErr)
}

func isDynamoStartupRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request send failed") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}
