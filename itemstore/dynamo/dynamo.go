// Package dynamo implements itemstore.Store on a DynamoDB table.
//
// Table schema:
//   - Partition key: id (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name lostboard-items \
//	  --attribute-definitions AttributeName=id,AttributeType=S \
//	  --key-schema AttributeName=id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
//
// Embeddings are stored as a list of numbers, the same shape the board's
// documents have always used.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/itemstore"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store is a DynamoDB backed itemstore.Store.
type Store struct {
	client Client
	table  string
}

// NewStore creates a store on table.
func NewStore(client Client, table string) *Store {
	return &Store{client: client, table: table}
}

const (
	attrID          = "id"
	attrType        = "type"
	attrTitle       = "title"
	attrDescription = "description"
	attrCategory    = "category"
	attrStation     = "station"
	attrTrainNumber = "trainNumber"
	attrDate        = "date"
	attrPhotoURL    = "photoUrl"
	attrEmbedding   = "imageEmbedding"
	attrPostedBy    = "postedBy"
	attrStatus      = "status"
	attrTimestamp   = "timestamp"
)

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrID: &types.AttributeValueMemberS{Value: id}}
}

func (s *Store) Put(ctx context.Context, rec item.Record) error {
	if err := itemstore.Validate(&rec); err != nil {
		return err
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      marshal(&rec),
	})
	if err != nil {
		return fmt.Errorf("dynamo: put %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (item.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return item.Record{}, fmt.Errorf("dynamo: get %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return item.Record{}, itemstore.ErrNotFound
	}
	return unmarshal(out.Item)
}

func (s *Store) List(ctx context.Context) ([]item.Record, error) {
	var (
		out   []item.Record
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamo: scan: %w", err)
		}
		for _, av := range page.Items {
			rec, err := unmarshal(av)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	itemstore.SortNewestFirst(out)
	return out, nil
}

func (s *Store) SetEmbedding(ctx context.Context, id string, e embedding.Embedding) error {
	in := &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.table),
		Key:                      key(id),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": attrID, "#e": attrEmbedding},
	}
	if e.Present() {
		if err := e.Validate(0); err != nil {
			return fmt.Errorf("dynamo: item %s: %w", id, err)
		}
		in.UpdateExpression = aws.String("SET #e = :e")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{":e": marshalEmbedding(e)}
	} else {
		in.UpdateExpression = aws.String("REMOVE #e")
	}

	if _, err := s.client.UpdateItem(ctx, in); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return itemstore.ErrNotFound
		}
		return fmt.Errorf("dynamo: set embedding %s: %w", id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key(id),
	})
	if err != nil {
		return fmt.Errorf("dynamo: delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func marshal(rec *item.Record) map[string]types.AttributeValue {
	av := map[string]types.AttributeValue{
		attrID:        &types.AttributeValueMemberS{Value: rec.ID},
		attrType:      &types.AttributeValueMemberS{Value: string(rec.Type)},
		attrTimestamp: &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.CreatedAt.UnixMilli(), 10)},
	}
	// Blank fields are left out.
	for name, v := range map[string]string{
		attrTitle:       rec.Title,
		attrDescription: rec.Description,
		attrCategory:    rec.Category,
		attrStation:     rec.Station,
		attrTrainNumber: rec.TrainNumber,
		attrDate:        rec.Date,
		attrPhotoURL:    rec.PhotoURL,
		attrPostedBy:    rec.PostedBy,
		attrStatus:      rec.Status,
	} {
		if v != "" {
			av[name] = &types.AttributeValueMemberS{Value: v}
		}
	}
	if rec.Embedding.Present() {
		av[attrEmbedding] = marshalEmbedding(rec.Embedding)
	}
	return av
}

func marshalEmbedding(e embedding.Embedding) types.AttributeValue {
	l := make([]types.AttributeValue, len(e))
	for i, v := range e {
		l[i] = &types.AttributeValueMemberN{Value: embedding.FormatComponent(v)}
	}
	return &types.AttributeValueMemberL{Value: l}
}

func unmarshal(av map[string]types.AttributeValue) (item.Record, error) {
	str := func(name string) string {
		if v, ok := av[name].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}

	rec := item.Record{
		ID:          str(attrID),
		Type:        item.Type(str(attrType)),
		Title:       str(attrTitle),
		Description: str(attrDescription),
		Category:    str(attrCategory),
		Station:     str(attrStation),
		TrainNumber: str(attrTrainNumber),
		Date:        str(attrDate),
		PhotoURL:    str(attrPhotoURL),
		PostedBy:    str(attrPostedBy),
		Status:      str(attrStatus),
	}
	if rec.ID == "" {
		return item.Record{}, errors.New("dynamo: item without id")
	}

	if ts, ok := av[attrTimestamp].(*types.AttributeValueMemberN); ok {
		ms, err := strconv.ParseInt(ts.Value, 10, 64)
		if err != nil {
			return item.Record{}, fmt.Errorf("dynamo: item %s: timestamp: %w", rec.ID, err)
		}
		rec.CreatedAt = time.UnixMilli(ms).UTC()
	}

	if l, ok := av[attrEmbedding].(*types.AttributeValueMemberL); ok && len(l.Value) > 0 {
		e := make(embedding.Embedding, len(l.Value))
		for i, v := range l.Value {
			n, ok := v.(*types.AttributeValueMemberN)
			if !ok {
				return item.Record{}, fmt.Errorf("dynamo: item %s: embedding component %d is not a number", rec.ID, i)
			}
			f, err := embedding.ParseComponent(n.Value)
			if err != nil {
				return item.Record{}, fmt.Errorf("dynamo: item %s: embedding component %d: %w", rec.ID, i, err)
			}
			e[i] = f
		}
		rec.Embedding = e
	}
	return rec, nil
}

var _ itemstore.Store = (*Store)(nil)
