package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidAccountType = errors.New("invalid account type")
)

type UserRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewUserRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func userKey(user *models.User) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: user.GetPK()},
		"SK": &types.AttributeValueMemberS{Value: user.GetSK()},
	}
}

// GetByPhoneNumber returns nil, nil when no user exists.
func (r *UserRepository) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.User, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       userKey(&models.User{PhoneNumber: phoneNumber}),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var dbUser models.User
	if err := attributevalue.UnmarshalMap(result.Item, &dbUser); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	if pkAttr, ok := result.Item["PK"].(*types.AttributeValueMemberS); ok {
		dbUser.PhoneNumber = strings.TrimPrefix(pkAttr.Value, "USER!")
	}

	return &dbUser, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if !user.AccountType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccountType, user.AccountType)
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal user for DynamoDB")
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	for k, v := range userKey(user) {
		item[k] = v
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrUserExists
		}
		r.logger.WithError(err).Error("Failed to create user in DynamoDB")
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// MarkPhoneVerified flags the user's phone as verified.
func (r *UserRepository) MarkPhoneVerified(ctx context.Context, user *models.User) error {
	user.PhoneVerified = true
	user.UpdatedAt = time.Now().UTC()

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              userKey(user),
		UpdateExpression: aws.String("SET phone_verified = :verified, updated_at = :updated_at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":verified":   &types.AttributeValueMemberBOOL{Value: true},
			":updated_at": &types.AttributeValueMemberS{Value: user.UpdatedAt.Format(time.RFC3339)},
		},
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to update user in DynamoDB")
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

// GetOrCreate returns the user for a phone that has just passed OTP
// verification, creating it with accountType when missing.
func (r *UserRepository) GetOrCreate(ctx context.Context, phoneNumber string, accountType models.AccountType) (*models.User, error) {
	user, err := r.GetByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}

	if user != nil {
		if !user.PhoneVerified {
			if err := r.MarkPhoneVerified(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	}

	newUser := &models.User{
		PhoneNumber:   phoneNumber,
		AccountType:   accountType,
		PhoneVerified: true,
	}

	if err := r.Create(ctx, newUser); err != nil {
		if errors.Is(err, ErrUserExists) {
			// Lost a race with a concurrent signup for the same phone.
			return r.GetByPhoneNumber(ctx, phoneNumber)
		}
		return nil, err
	}

	return newUser, nil
}
