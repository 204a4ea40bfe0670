package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrConcurrentModification is returned when another writer formatted
	// the device between our read and our conditional write.
	ErrConcurrentModification = errors.New("s3: concurrent superblock modification")
	// ErrGeometryMismatch is returned when the recorded superblock
	// disagrees with the requested geometry.
	ErrGeometryMismatch = errors.New("s3: superblock geometry mismatch")
	// ErrSuperblockNotFound is returned when no superblock is recorded.
	ErrSuperblockNotFound = errors.New("s3: superblock not found")
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Superblock records the fixed geometry of one S3 block device.
type Superblock struct {
	BlockSize   int
	NumBlocks   uint32
	Compression uint8
}

// SuperblockStore persists device geometry in DynamoDB, keyed by the S3
// base URI ("s3://bucket/prefix"). The conditional put gives formatting
// the compare-and-swap semantics S3 itself lacks: exactly one writer wins
// and every other sees the winner's geometry.
//
// Table schema:
//   - Partition key: base_uri (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name diskcore-superblocks \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S \
//	  --key-schema AttributeName=base_uri,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type SuperblockStore struct {
	client    DDBClient
	tableName string
}

// NewSuperblockStore creates a SuperblockStore over the given table.
func NewSuperblockStore(client DDBClient, tableName string) *SuperblockStore {
	return &SuperblockStore{
		client:    client,
		tableName: tableName,
	}
}

// Ensure records sb for baseURI if no superblock exists yet. If one
// exists, it must match sb exactly; otherwise ErrGeometryMismatch is
// returned. A lost race against another formatter surfaces as
// ErrConcurrentModification.
func (s *SuperblockStore) Ensure(ctx context.Context, baseURI string, sb Superblock) error {
	existing, err := s.Load(ctx, baseURI)
	if err == nil {
		if existing != sb {
			return fmt.Errorf("%w: recorded %+v, requested %+v", ErrGeometryMismatch, existing, sb)
		}
		return nil
	}
	if !errors.Is(err, ErrSuperblockNotFound) {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]ddbtypes.AttributeValue{
			"base_uri":    &ddbtypes.AttributeValueMemberS{Value: baseURI},
			"block_size":  &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(sb.BlockSize)},
			"num_blocks":  &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(uint64(sb.NumBlocks), 10)},
			"compression": &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(int(sb.Compression))},
		},
		ConditionExpression: aws.String("attribute_not_exists(base_uri)"),
	})
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
		}
		return fmt.Errorf("s3: record superblock: %w", err)
	}
	return nil
}

// Load returns the superblock recorded for baseURI.
func (s *SuperblockStore) Load(ctx context.Context, baseURI string) (Superblock, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"base_uri": &ddbtypes.AttributeValueMemberS{Value: baseURI},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Superblock{}, fmt.Errorf("s3: load superblock: %w", err)
	}
	if len(resp.Item) == 0 {
		return Superblock{}, ErrSuperblockNotFound
	}

	sb := Superblock{}
	if sb.BlockSize, err = itemInt(resp.Item, "block_size"); err != nil {
		return Superblock{}, err
	}
	nb, err := itemInt(resp.Item, "num_blocks")
	if err != nil {
		return Superblock{}, err
	}
	sb.NumBlocks = uint32(nb)
	comp, err := itemInt(resp.Item, "compression")
	if err != nil {
		return Superblock{}, err
	}
	sb.Compression = uint8(comp)
	return sb, nil
}

func itemInt(item map[string]ddbtypes.AttributeValue, name string) (int, error) {
	attr, ok := item[name].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("s3: invalid %s attribute in superblock item", name)
	}
	n, err := strconv.Atoi(attr.Value)
	if err != nil {
		return 0, fmt.Errorf("s3: parse %s: %w", name, err)
	}
	return n, nil
}
