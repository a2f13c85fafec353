package repository

import (
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

// fakeDynamo understands only the condition expressions these repositories
// send.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	// conflicts makes the next n conditional version puts fail.
	conflicts int
	puts      int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value + "|" + key["SK"].(*types.AttributeValueMemberS).Value
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++

	k := keyOf(in.Item)
	existing, exists := f.items[k]

	switch aws.ToString(in.ConditionExpression) {
	case "":
	case "attribute_not_exists(PK)":
		if exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	case "attribute_exists(PK) AND Version = :v":
		if f.conflicts > 0 {
			f.conflicts--
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("conflict")}
		}
		want := in.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN).Value
		got, ok := existing["Version"].(*types.AttributeValueMemberN)
		if !exists || !ok || got.Value != want {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("version mismatch")}
		}
	default:
		panic("unsupported condition " + aws.ToString(in.ConditionExpression))
	}

	f.items[k] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := keyOf(in.Key)
	item, ok := f.items[k]
	if !ok {
		item = copyItem(in.Key)
	}
	item["phone_verified"] = in.ExpressionAttributeValues[":verified"]
	item["updated_at"] = in.ExpressionAttributeValues[":updated_at"]
	f.items[k] = item
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	delete(f.items, keyOf(in.Key))
	f.mu.Unlock()
	return &dynamodb.DeleteItemOutput{}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
