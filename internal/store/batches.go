package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/skillsift/skillsift/internal/model"
)

// PutBatch creates or replaces a batch item.
func (s *Store) PutBatch(ctx context.Context, b model.Batch) error {
	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("failed to marshal batch %s: %w", b.GroupID, err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.batchesTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put batch %s: %w", b.GroupID, err)
	}
	return nil
}

// GetBatchesByStatus returns every batch in the given status, paginating
// the StatusIndex until no continuation key remains.
func (s *Store) GetBatchesByStatus(ctx context.Context, status model.BatchStatus) ([]model.Batch, error) {
	var batches []model.Batch
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.batchesTable),
			IndexName:              aws.String(StatusIndex),
			KeyConditionExpression: aws.String("#status = :status"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: string(status)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query batches by status %s: %w", status, err)
		}

		var page []model.Batch
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal batch page: %w", err)
		}
		batches = append(batches, page...)

		if len(out.LastEvaluatedKey) == 0 {
			return batches, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// UpdateBatchStatus transitions a batch from one status to another, writing
// any extra fields in the same update. The write succeeds only while the
// stored status still equals from; a lost race surfaces as
// ErrConditionFailed.
func (s *Store) UpdateBatchStatus(ctx context.Context, groupID string, createdAt time.Time, from, to model.BatchStatus, extra map[string]any) error {
	createdAV, err := attributevalue.Marshal(createdAt)
	if err != nil {
		return fmt.Errorf("failed to marshal batch key: %w", err)
	}

	names := map[string]string{"#status": "status"}
	values := map[string]types.AttributeValue{
		":from": &types.AttributeValueMemberS{Value: string(from)},
		":to":   &types.AttributeValueMemberS{Value: string(to)},
	}
	update := "SET #status = :to"

	i := 0
	for field, val := range extra {
		av, err := attributevalue.Marshal(val)
		if err != nil {
			return fmt.Errorf("failed to marshal field %s: %w", field, err)
		}
		name := fmt.Sprintf("#f%d", i)
		placeholder := fmt.Sprintf(":v%d", i)
		names[name] = field
		values[placeholder] = av
		update += fmt.Sprintf(", %s = %s", name, placeholder)
		i++
	}

	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.batchesTable),
		Key: map[string]types.AttributeValue{
			"group_id":   &types.AttributeValueMemberS{Value: groupID},
			"created_at": createdAV,
		},
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("#status = :from"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("batch %s not in status %s: %w", groupID, from, ErrConditionFailed)
		}
		return fmt.Errorf("failed to update batch %s to %s: %w", groupID, to, err)
	}

	s.logger.Debug("batch status updated", "group_id", groupID, "from", from, "to", to)
	return nil
}
