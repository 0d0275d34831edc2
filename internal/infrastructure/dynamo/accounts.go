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
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/samber/oops"
)

// dynamoAPI is the subset of *dynamodb.Client the account store calls.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// identityItem reserves an email or username. The accounts table is keyed by
// account_id, so uniqueness is enforced through these marker items.
type identityItem struct {
	Identity  string `dynamodbav:"identity"`
	AccountID string `dynamodbav:"account_id"`
}

func emailIdentity(email string) string       { return "email#" + email }
func usernameIdentity(username string) string { return "username#" + username }

// AccountRepo provides typed DynamoDB operations for the accounts table.
type AccountRepo struct {
	client     dynamoAPI
	accounts   string
	identities string
	now        func() time.Time
}

func NewAccountRepo(client dynamoAPI, tables config.DynamoTables) *AccountRepo {
	return &AccountRepo{client: client, accounts: tables.Accounts, identities: tables.Identities, now: time.Now}
}

func (r *AccountRepo) FindByID(ctx context.Context, accountID string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.accounts),
		Key:            strKey(fieldAccountID, accountID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("account_id", accountID).Wrap(err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.Account, error) {
	email, username = domain.NormalizeIdentity(email), domain.NormalizeIdentity(username)
	var keys []string
	if email != "" {
		keys = append(keys, emailIdentity(email))
	}
	if username != "" {
		keys = append(keys, usernameIdentity(username))
	}
	for _, key := range keys {
		accountID, err := r.resolveIdentity(ctx, key)
		if err != nil {
			return nil, err
		}
		if accountID != "" {
			return r.FindByID(ctx, accountID)
		}
	}
	return nil, fmt.Errorf("account lookup: %w", domain.ErrNotFound)
}

func (r *AccountRepo) resolveIdentity(ctx context.Context, key string) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.identities),
		Key:            strKey(fieldIdentity, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", oops.Code("ACCOUNT_LOOKUP_FAILED").With("identity", key).Wrap(err)
	}
	if out.Item == nil {
		return "", nil
	}
	var it identityItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return "", fmt.Errorf("unmarshal identity: %w", err)
	}
	return it.AccountID, nil
}

// FindBySecretHash queries the sparse secret index, then re-reads the account
// with a consistent read since GSIs lag behind the base table.
func (r *AccountRepo) FindBySecretHash(ctx context.Context, kind domain.SecretKind, hash string) (*domain.Account, error) {
	var index, attr string
	switch kind {
	case domain.SecretVerification:
		index, attr = indexVerificationHash, fieldVerificationHash
	case domain.SecretReset:
		index, attr = indexResetHash, fieldResetHash
	default:
		return nil, fmt.Errorf("unknown secret kind %q: %w", kind, domain.ErrBadRequest)
	}
	if hash == "" {
		return nil, fmt.Errorf("empty %s hash: %w", kind, domain.ErrNotFound)
	}
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.accounts),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: hash}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, oops.Code("ACCOUNT_SECRET_LOOKUP_FAILED").With("kind", string(kind)).Wrap(err)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("%s hash: %w", kind, domain.ErrNotFound)
	}
	var hit domain.Account
	if err := attributevalue.UnmarshalMap(out.Items[0], &hit); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	a, err := r.FindByID(ctx, hit.AccountID)
	if err != nil {
		return nil, err
	}
	if a.Pending(kind).Hash != hash {
		return nil, fmt.Errorf("%s hash: %w", kind, domain.ErrNotFound)
	}
	return a, nil
}

// Create writes the account and both identity markers in one transaction.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	puts := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:                aws.String(r.accounts),
			Item:                     item,
			ConditionExpression:      aws.String("attribute_not_exists(#k)"),
			ExpressionAttributeNames: map[string]string{"#k": fieldAccountID},
		},
	}}
	for _, key := range []string{emailIdentity(a.Email), usernameIdentity(a.Username)} {
		marker, err := attributevalue.MarshalMap(identityItem{Identity: key, AccountID: a.AccountID})
		if err != nil {
			return fmt.Errorf("marshal identity: %w", err)
		}
		puts = append(puts, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(r.identities),
				Item:                     marker,
				ConditionExpression:      aws.String("attribute_not_exists(#k)"),
				ExpressionAttributeNames: map[string]string{"#k": fieldIdentity},
			},
		})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: puts})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) && conditionFailed(tce.CancellationReasons) {
		return oops.Code("ACCOUNT_CONFLICT").
			With("username", a.Username).
			Wrap(domain.ErrConflict)
	}
	return oops.Code("ACCOUNT_CREATE_FAILED").With("account_id", a.AccountID).Wrap(err)
}

func conditionFailed(reasons []types.CancellationReason) bool {
	for _, r := range reasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// Update applies u with a single conditional UpdateItem. The account must
// exist and every precondition on u must hold.
func (r *AccountRepo) Update(ctx context.Context, accountID string, u domain.AccountUpdate) error {
	if u.Empty() {
		return oops.Code("ACCOUNT_UPDATE_INVALID").Wrap(errors.New("no fields to update"))
	}
	ue, err := buildUpdateExpr(updateFields(u, r.now().UTC()))
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_INVALID").Wrap(err)
	}
	ue.requireExists(fieldAccountID)
	if u.IfRefreshTokenHash != nil {
		ue.requireEqual(fieldRefreshTokenHash, *u.IfRefreshTokenHash)
	}
	if u.IfVerificationHash != nil {
		ue.requireEqual(fieldVerificationHash, *u.IfVerificationHash)
	}
	if u.IfResetHash != nil {
		ue.requireEqual(fieldResetHash, *u.IfResetHash)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.accounts),
		Key:                                 strKey(fieldAccountID, accountID),
		UpdateExpression:                    aws.String(ue.Expr),
		ConditionExpression:                 aws.String(ue.Cond),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
		}
		return fmt.Errorf("update account %s: %w", accountID, domain.ErrPreconditionFailed)
	}
	return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", accountID).Wrap(err)
}

// updateFields maps u onto attribute names. Cleared values map to nil so the
// attribute is removed and drops out of the sparse indexes.
func updateFields(u domain.AccountUpdate, now time.Time) map[string]interface{} {
	fields := map[string]interface{}{fieldUpdatedAt: now}
	if u.PasswordHash != nil {
		fields[fieldPasswordHash] = *u.PasswordHash
	}
	if u.EmailVerified != nil {
		fields[fieldEmailVerified] = *u.EmailVerified
	}
	if u.RefreshTokenHash != nil {
		fields[fieldRefreshTokenHash] = nilIfEmpty(*u.RefreshTokenHash)
	}
	if u.Verification != nil {
		setSecret(fields, fieldVerificationHash, fieldVerificationExpiresAt, *u.Verification)
	}
	if u.Reset != nil {
		setSecret(fields, fieldResetHash, fieldResetExpiresAt, *u.Reset)
	}
	return fields
}

func setSecret(fields map[string]interface{}, hashAttr, expiresAttr string, s domain.PendingSecret) {
	if s.IsZero() {
		fields[hashAttr] = nil
		fields[expiresAttr] = nil
		return
	}
	fields[hashAttr] = s.Hash
	fields[expiresAttr] = s.ExpiresAt.UTC()
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
