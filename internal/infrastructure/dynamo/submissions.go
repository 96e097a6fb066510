package dynamo

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/blox-verify/internal/domain"
)

type SubmissionRepo struct {
	client    API
	tableName string
}

func NewSubmissionRepo(client API, tableName string) *SubmissionRepo {
	return &SubmissionRepo{client: client, tableName: tableName}
}

func queueKey(guildID, status string) string {
	return guildID + "#" + status
}

func (r *SubmissionRepo) Append(ctx context.Context, s *domain.Submission) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	item[fieldQueue] = str(queueKey(s.GuildID, s.Status))

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldSubmission},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("submission %s: %w", s.ID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *SubmissionRepo) Get(ctx context.Context, id string) (*domain.Submission, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldSubmission, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	var s domain.Submission
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}
	return &s, nil
}

func (r *SubmissionRepo) ListPending(ctx context.Context, guildID string) ([]domain.Submission, error) {
	var (
		result []domain.Submission
		start  map[string]types.AttributeValue
	)
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(r.tableName),
			IndexName:                aws.String(queueIndex),
			KeyConditionExpression:   aws.String("#q = :q"),
			ExpressionAttributeNames: map[string]string{"#q": fieldQueue},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":q": str(queueKey(guildID, domain.SubmissionPending)),
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, err
		}
		var page []domain.Submission
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal submissions: %w", err)
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	// submitted_at is stored as RFC3339 text, which only sorts correctly at equal precision.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SubmittedAt.Before(result[j].SubmittedAt)
	})
	return result, nil
}

func (r *SubmissionRepo) Decide(ctx context.Context, id string, d domain.Decision) (*domain.Submission, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldStatus:    d.Status,
		fieldQueue:     queueKey(current.GuildID, d.Status),
		"processed_by": d.ProcessedBy,
		"decision":     domain.DecisionWord(d.Status),
		"comments":     d.Comments,
		"processed_at": d.ProcessedAt.UTC(),
	})
	if err != nil {
		return nil, err
	}
	ue.Names["#st"] = fieldStatus
	ue.Values[":pending"] = str(domain.SubmissionPending)

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldSubmission, id),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#st = :pending"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("submission %s: %w", id, domain.ErrNotPending)
		}
		return nil, err
	}
	var s domain.Submission
	if err := attributevalue.UnmarshalMap(out.Attributes, &s); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}
	return &s, nil
}
