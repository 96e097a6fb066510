package dynamo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/blox-verify/internal/domain"
)

const adjustRetries = 5

// VerificationRepo stores verification records keyed by owner_id. The uniqueness of a
// handle is enforced by a guard item (owner_id = "handle#<lower handle>", holder = owner)
// written in the same transaction as the record.
type VerificationRepo struct {
	client    API
	tableName string
}

func NewVerificationRepo(client API, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

func (r *VerificationRepo) getRecord(ctx context.Context, ownerID string) (*domain.VerificationRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldOwnerID, ownerID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification for owner %s: %w", ownerID, domain.ErrNotFound)
	}
	var rec domain.VerificationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal verification: %w", err)
	}
	return &rec, nil
}

// holderOf returns the owner currently reserving handle, or "" if none.
func (r *VerificationRepo) holderOf(ctx context.Context, handle string) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            guardKey(handle),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if out.Item == nil {
		return "", nil
	}
	var g struct {
		Holder string `dynamodbav:"holder"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &g); err != nil {
		return "", fmt.Errorf("unmarshal handle guard: %w", err)
	}
	return g.Holder, nil
}

func (r *VerificationRepo) recordItem(rec domain.VerificationRecord) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal verification: %w", err)
	}
	return item, nil
}

func (r *VerificationRepo) guardItem(handle, ownerID string) map[string]types.AttributeValue {
	item := guardKey(handle)
	item[fieldHolder] = str(ownerID)
	return item
}

func (r *VerificationRepo) Commit(ctx context.Context, req domain.CommitRequest) (*domain.CommitResult, error) {
	holder, err := r.holderOf(ctx, req.ExternalHandle)
	if err != nil {
		return nil, err
	}
	own, err := r.getRecord(ctx, req.OwnerID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	res := &domain.CommitResult{}
	credits := req.InitialCredits
	var writes []types.TransactWriteItem

	switch {
	case holder != "" && holder != req.OwnerID:
		prev, err := r.getRecord(ctx, holder)
		if err != nil {
			return nil, err
		}
		credits = prev.Credits
		res.DisplacedOwnerID = holder
		writes = append(writes, types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 aws.String(r.tableName),
			Key:                       strKey(fieldOwnerID, holder),
			ConditionExpression:       aws.String("#c = :c"),
			ExpressionAttributeNames:  map[string]string{"#c": fieldCredits},
			ExpressionAttributeValues: map[string]types.AttributeValue{":c": num(prev.Credits)},
		}})
	case own != nil:
		credits = own.Credits
	default:
		res.Granted = true
	}

	// An owner moving to a different handle releases its old reservation.
	newKey := strings.ToLower(req.ExternalHandle)
	if own != nil && strings.ToLower(own.ExternalHandle) != newKey {
		writes = append(writes, types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 aws.String(r.tableName),
			Key:                       guardKey(own.ExternalHandle),
			ConditionExpression:       aws.String("attribute_not_exists(#h) OR #h = :o"),
			ExpressionAttributeNames:  map[string]string{"#h": fieldHolder},
			ExpressionAttributeValues: map[string]types.AttributeValue{":o": str(req.OwnerID)},
		}})
	}

	guardCond := "attribute_not_exists(#pk)"
	guardNames := map[string]string{"#pk": fieldOwnerID}
	var guardValues map[string]types.AttributeValue
	if holder != "" {
		guardCond = "#h = :h"
		guardNames = map[string]string{"#h": fieldHolder}
		guardValues = map[string]types.AttributeValue{":h": str(holder)}
	}
	writes = append(writes, types.TransactWriteItem{Put: &types.Put{
		TableName:                 aws.String(r.tableName),
		Item:                      r.guardItem(req.ExternalHandle, req.OwnerID),
		ConditionExpression:       aws.String(guardCond),
		ExpressionAttributeNames:  guardNames,
		ExpressionAttributeValues: guardValues,
	}})

	rec := domain.VerificationRecord{
		OwnerID:        req.OwnerID,
		ExternalHandle: req.ExternalHandle,
		HandleKey:      newKey,
		VerifiedAt:     req.VerifiedAt.UTC(),
		Credits:        credits,
	}
	item, err := r.recordItem(rec)
	if err != nil {
		return nil, err
	}
	recPut := &types.Put{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldOwnerID},
	}
	if own != nil {
		recPut.ConditionExpression = aws.String("#c = :c")
		recPut.ExpressionAttributeNames = map[string]string{"#c": fieldCredits}
		recPut.ExpressionAttributeValues = map[string]types.AttributeValue{":c": num(own.Credits)}
	}
	writes = append(writes, types.TransactWriteItem{Put: recPut})

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
		if isTxCanceled(err) {
			return nil, fmt.Errorf("verification for %s changed concurrently: %w", req.OwnerID, domain.ErrConflict)
		}
		return nil, err
	}
	res.Record = rec
	return res, nil
}

func (r *VerificationRepo) GetByOwner(ctx context.Context, ownerID string) (*domain.VerificationRecord, error) {
	if strings.HasPrefix(ownerID, handleGuardPrefix) {
		return nil, fmt.Errorf("verification for owner %s: %w", ownerID, domain.ErrNotFound)
	}
	return r.getRecord(ctx, ownerID)
}

func (r *VerificationRepo) GetByHandle(ctx context.Context, handle string) (*domain.VerificationRecord, error) {
	holder, err := r.holderOf(ctx, handle)
	if err != nil {
		return nil, err
	}
	if holder == "" {
		return nil, fmt.Errorf("verification for handle %s: %w", handle, domain.ErrNotFound)
	}
	return r.getRecord(ctx, holder)
}

func (r *VerificationRepo) Delete(ctx context.Context, ownerID string) error {
	rec, err := r.GetByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:                aws.String(r.tableName),
				Key:                      strKey(fieldOwnerID, ownerID),
				ConditionExpression:      aws.String("attribute_exists(#pk)"),
				ExpressionAttributeNames: map[string]string{"#pk": fieldOwnerID},
			}},
			{Delete: &types.Delete{
				TableName:                 aws.String(r.tableName),
				Key:                       guardKey(rec.ExternalHandle),
				ConditionExpression:       aws.String("attribute_not_exists(#h) OR #h = :o"),
				ExpressionAttributeNames:  map[string]string{"#h": fieldHolder},
				ExpressionAttributeValues: map[string]types.AttributeValue{":o": str(ownerID)},
			}},
		},
	})
	if err != nil {
		if isTxCanceled(err) {
			return fmt.Errorf("verification for owner %s: %w", ownerID, domain.ErrNotFound)
		}
		return err
	}
	return nil
}

func (r *VerificationRepo) GrantInitial(ctx context.Context, ownerID, handle string, amount int, at time.Time) (*domain.VerificationRecord, bool, error) {
	rec := domain.VerificationRecord{
		OwnerID:        ownerID,
		ExternalHandle: handle,
		HandleKey:      strings.ToLower(handle),
		VerifiedAt:     at.UTC(),
		Credits:        amount,
	}
	item, err := r.recordItem(rec)
	if err != nil {
		return nil, false, err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(r.tableName),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
				ExpressionAttributeNames: map[string]string{"#pk": fieldOwnerID},
			}},
			{Put: &types.Put{
				TableName:                aws.String(r.tableName),
				Item:                     r.guardItem(handle, ownerID),
				ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
				ExpressionAttributeNames: map[string]string{"#pk": fieldOwnerID},
			}},
		},
	})
	if err == nil {
		return &rec, true, nil
	}
	if !isTxCanceled(err) {
		return nil, false, err
	}

	existing, gerr := r.getRecord(ctx, ownerID)
	if isNotFound(gerr) {
		existing, gerr = r.GetByHandle(ctx, handle)
	}
	if gerr != nil {
		return nil, false, gerr
	}
	return existing, false, nil
}

func (r *VerificationRepo) Debit(ctx context.Context, handle string, amount int) (int, error) {
	holder, err := r.holderOf(ctx, handle)
	if err != nil {
		return 0, err
	}
	if holder == "" {
		return 0, fmt.Errorf("credits for handle %s: %w", handle, domain.ErrNotFound)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldOwnerID, holder),
		UpdateExpression:         aws.String("SET #c = #c - :amt"),
		ConditionExpression:      aws.String("#k = :k AND #c >= :amt"),
		ExpressionAttributeNames: map[string]string{"#c": fieldCredits, "#k": fieldHandleKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amt": num(amount),
			":k":   str(strings.ToLower(handle)),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if !isConditionFailed(err) {
			return 0, err
		}
		rec, gerr := r.getRecord(ctx, holder)
		if gerr != nil || !strings.EqualFold(rec.ExternalHandle, handle) {
			return 0, fmt.Errorf("credits for handle %s: %w", handle, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("%s has %d: %w", handle, rec.Credits, domain.ErrInsufficientCredits)
	}

	var left struct {
		Credits int `dynamodbav:"credits"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &left); err != nil {
		return 0, fmt.Errorf("unmarshal credits: %w", err)
	}
	return left.Credits, nil
}

// AdjustCredits applies delta with an optimistic compare-and-set so the balance can be
// clamped at zero.
func (r *VerificationRepo) AdjustCredits(ctx context.Context, ownerID string, delta int) (int, error) {
	for attempt := 0; attempt < adjustRetries; attempt++ {
		rec, err := r.GetByOwner(ctx, ownerID)
		if err != nil {
			return 0, err
		}
		next := max(rec.Credits+delta, 0)
		_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String(r.tableName),
			Key:                      strKey(fieldOwnerID, ownerID),
			UpdateExpression:         aws.String("SET #c = :next"),
			ConditionExpression:      aws.String("#c = :prev"),
			ExpressionAttributeNames: map[string]string{"#c": fieldCredits},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":next": num(next),
				":prev": num(rec.Credits),
			},
		})
		if err == nil {
			return next, nil
		}
		if !isConditionFailed(err) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("credits for owner %s kept changing: %w", ownerID, domain.ErrConflict)
}
