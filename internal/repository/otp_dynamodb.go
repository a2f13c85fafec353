package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/sirupsen/logrus"
)

// DynamoAPI is the subset of the DynamoDB client the repositories use.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

const maxUpdateRetries = 10

var errConflict = errors.New("concurrent update conflict")

type DynamoOTPRepository struct {
	client    DynamoAPI
	tableName string
	retention time.Duration
	logger    *logrus.Logger
}

// NewDynamoOTPRepository stores records in a single table keyed by
// PK=OTP#<phone>, SK=METADATA. Items carry a TTL attribute retention after
// issue so DynamoDB reaps them once they no longer matter.
func NewDynamoOTPRepository(client DynamoAPI, tableName string, retention time.Duration, logger *logrus.Logger) *DynamoOTPRepository {
	return &DynamoOTPRepository{
		client:    client,
		tableName: tableName,
		retention: retention,
		logger:    logger,
	}
}

func otpKey(phone string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("OTP#%s", phone)},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}

func (r *DynamoOTPRepository) item(record models.OTPRecord) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OTP record: %w", err)
	}
	for k, v := range otpKey(record.Phone) {
		item[k] = v
	}
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(record.IssuedAt.Add(r.retention).Unix(), 10)}
	return item, nil
}

// Put overwrites any existing record for the phone. Each issue gets a fresh
// Version seeded from IssuedAt, so an Update that read the replaced record
// fails its condition instead of writing the old code back.
func (r *DynamoOTPRepository) Put(ctx context.Context, record models.OTPRecord) error {
	record.Version = record.IssuedAt.UnixNano()
	item, err := r.item(record)
	if err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in DynamoDB")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *DynamoOTPRepository) Fetch(ctx context.Context, phone string) (*models.OTPRecord, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            otpKey(phone),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if result.Item == nil {
		return nil, models.ErrNotFound
	}

	var record models.OTPRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP record: %w", err)
	}

	return &record, nil
}

// Update applies fn with optimistic locking on Version, retrying when a
// concurrent writer got there first.
func (r *DynamoOTPRepository) Update(ctx context.Context, phone string, fn func(*models.OTPRecord) error) (*models.OTPRecord, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		record, err := r.Fetch(ctx, phone)
		if err != nil {
			return nil, err
		}

		expected := record.Version
		if err := fn(record); err != nil {
			return nil, err
		}
		record.Version = expected + 1

		err = r.putIfVersion(ctx, *record, expected)
		if errors.Is(err, errConflict) {
			r.logger.WithField("attempt", attempt+1).Debug("OTP update conflict, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return record, nil
	}

	return nil, fmt.Errorf("failed to update OTP after %d attempts: %w", maxUpdateRetries, errConflict)
}

func (r *DynamoOTPRepository) putIfVersion(ctx context.Context, record models.OTPRecord, expected int64) error {
	item, err := r.item(record)
	if err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(PK) AND Version = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return errConflict
		}
		r.logger.WithError(err).Error("Failed to update OTP in DynamoDB")
		return fmt.Errorf("failed to update OTP: %w", err)
	}

	return nil
}

func (r *DynamoOTPRepository) Delete(ctx context.Context, phone string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       otpKey(phone),
	})
	if err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}

	return nil
}
