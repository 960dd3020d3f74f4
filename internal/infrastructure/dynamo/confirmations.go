package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/go-auth-api/internal/domain"
)

// ConfirmationRepo manages single-use email confirmation tokens.
// PK: token. Consume also flips the owning user's enabled flag, so the repo
// knows both table names and writes them in one transaction.
type ConfirmationRepo struct {
	client     *dynamodb.Client
	tableName  string
	usersTable string
}

func NewConfirmationRepo(client *dynamodb.Client, tableName, usersTable string) *ConfirmationRepo {
	return &ConfirmationRepo{client: client, tableName: tableName, usersTable: usersTable}
}

func (r *ConfirmationRepo) Put(ctx context.Context, c *domain.ConfirmationToken) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal confirmation token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("%w: put confirmation token: %v", domain.ErrStorageFailure, err)
	}
	return nil
}

func (r *ConfirmationRepo) Get(ctx context.Context, token string) (*domain.ConfirmationToken, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("token", token),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get confirmation token: %v", domain.ErrStorageFailure, err)
	}
	if out.Item == nil {
		return nil, domain.ErrTokenNotFound
	}
	var c domain.ConfirmationToken
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Consume marks the token confirmed and enables its user as one transaction.
// The token update carries a condition that it is still unconsumed and
// unexpired, so under concurrent calls exactly one wins; the loser's
// transaction is cancelled and the token is re-read to report whether it lost
// to a prior confirmation or to the expiry clock.
func (r *ConfirmationRepo) Consume(ctx context.Context, token string, now time.Time) error {
	c, err := r.Get(ctx, token)
	if err != nil {
		return err
	}
	if c.Consumed() {
		return domain.ErrAlreadyConfirmed
	}
	if c.Expired(now) {
		return domain.ErrTokenExpired
	}

	nowAttr := &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:           aws.String(r.tableName),
				Key:                 strKey("token", token),
				UpdateExpression:    aws.String("SET confirmed_at = :now"),
				ConditionExpression: aws.String("attribute_not_exists(confirmed_at) AND expires_at > :now"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":now": nowAttr,
				},
			}},
			{Update: &types.Update{
				TableName:           aws.String(r.usersTable),
				Key:                 strKey("user_id", c.UserID),
				UpdateExpression:    aws.String("SET enabled = :t, updated_at = :u"),
				ConditionExpression: aws.String("attribute_exists(user_id)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":t": &types.AttributeValueMemberBOOL{Value: true},
					":u": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
				},
			}},
		},
	})
	if err == nil {
		return nil
	}

	// Cancellation reasons are positional: index 0 is the token update,
	// index 1 the user update.
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) && len(tce.CancellationReasons) > 0 &&
		aws.ToString(tce.CancellationReasons[0].Code) == "ConditionalCheckFailed" {
		// Lost the race or ran out the clock; re-read to tell which.
		fresh, getErr := r.Get(ctx, token)
		if getErr != nil {
			return getErr
		}
		if fresh.Consumed() {
			return domain.ErrAlreadyConfirmed
		}
		return domain.ErrTokenExpired
	}
	return fmt.Errorf("%w: consume confirmation token: %v", domain.ErrStorageFailure, err)
}
