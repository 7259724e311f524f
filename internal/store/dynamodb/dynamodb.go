// Package dynamodb is a credential store backed by an Amazon DynamoDB table.
//
// Items use the attribute names key, secret, domain, zoneid and last_set, all
// strings, with key as the partition key.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/credential"
)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// item is the stored layout.
type item struct {
	Key     string `dynamodbav:"key"`
	Secret  string `dynamodbav:"secret"`
	Domain  string `dynamodbav:"domain"`
	ZoneID  string `dynamodbav:"zoneid"`
	LastSet string `dynamodbav:"last_set"`
}

var stringAttributes = []string{"key", "secret", "domain", "zoneid", "last_set"}

// Store implements credential.Store on one table.
type Store struct {
	client API
	table  string
}

// New creates a Store for table.
func New(client API, table string) (*Store, error) {
	if table == "" {
		return nil, errors.New("dynamodb store: table name is required")
	}
	return &Store{client: client, table: table}, nil
}

// Get reads the item for key with a strongly consistent read.
func (s *Store) Get(ctx context.Context, key string) (credential.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return credential.Record{}, fmt.Errorf("get item %q from %s: %w", key, s.table, err)
	}
	if len(out.Item) == 0 {
		return credential.Record{}, credential.ErrNotFound
	}
	return decodeItem(key, out.Item)
}

// Put writes the full item for r.Key.
func (s *Store) Put(ctx context.Context, r credential.Record) error {
	av, err := attributevalue.MarshalMap(item{
		Key:     r.Key,
		Secret:  r.SecretHash,
		Domain:  r.Domain,
		ZoneID:  r.ZoneID,
		LastSet: r.LastSetAddress,
	})
	if err != nil {
		return fmt.Errorf("marshal item %q: %w", r.Key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put item %q into %s: %w", r.Key, s.table, err)
	}
	return nil
}

// Ping checks that the table exists and is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", s.table, err)
	}
	return nil
}

func decodeItem(key string, av map[string]types.AttributeValue) (credential.Record, error) {
	for _, name := range stringAttributes {
		v, ok := av[name]
		if !ok {
			continue
		}
		if _, isString := v.(*types.AttributeValueMemberS); !isString {
			return credential.Record{}, fmt.Errorf("%w: key %q attribute %s is not a string", credential.ErrCorrupt, key, name)
		}
	}

	var it item
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return credential.Record{}, fmt.Errorf("%w: key %q: %v", credential.ErrCorrupt, key, err)
	}
	return credential.Record{
		Key:            it.Key,
		SecretHash:     it.Secret,
		Domain:         it.Domain,
		ZoneID:         it.ZoneID,
		LastSetAddress: it.LastSet,
	}, nil
}

var _ credential.Store = (*Store)(nil)
