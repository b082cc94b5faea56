package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/skillsift/skillsift/internal/model"
)

// GetJobsByGroup returns every posting assigned to groupID, paginating the
// GroupIndex until exhausted. The index is eventually consistent: a posting
// written moments ago may be missing from the result.
func (s *Store) GetJobsByGroup(ctx context.Context, groupID string) ([]model.JobPosting, error) {
	var postings []model.JobPosting
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.jobsTable),
			IndexName:              aws.String(GroupIndex),
			KeyConditionExpression: aws.String("group_id = :gid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":gid": &types.AttributeValueMemberS{Value: groupID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query jobs for group %s: %w", groupID, err)
		}

		var page []model.JobPosting
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job page: %w", err)
		}
		postings = append(postings, page...)

		if len(out.LastEvaluatedKey) == 0 {
			return postings, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// BulkWriteJobs writes postings in chunks of the BatchWriteItem ceiling,
// re-issuing unprocessed entries with backoff. Put semantics make duplicate
// writes of the same key safe.
func (s *Store) BulkWriteJobs(ctx context.Context, postings []model.JobPosting) error {
	for start := 0; start < len(postings); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(postings))

		reqs := make([]types.WriteRequest, 0, end-start)
		for _, p := range postings[start:end] {
			item, err := attributevalue.MarshalMap(p)
			if err != nil {
				return fmt.Errorf("failed to marshal posting %s/%s: %w", p.Source, p.ID, err)
			}
			reqs = append(reqs, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		pending := map[string][]types.WriteRequest{s.jobsTable: reqs}
		err := s.retry.Do(ctx, func() error {
			out, err := s.db.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return err
			}
			if len(out.UnprocessedItems[s.jobsTable]) > 0 {
				pending = map[string][]types.WriteRequest{
					s.jobsTable: out.UnprocessedItems[s.jobsTable],
				}
				return fmt.Errorf("%d unprocessed writes", len(out.UnprocessedItems[s.jobsTable]))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to bulk-write postings: %w", err)
		}
	}
	return nil
}

// UpdateJobKeywords attaches the extracted keyword list to one posting.
// An empty list is still written so the posting counts as reconciled.
func (s *Store) UpdateJobKeywords(ctx context.Context, key model.Key, keywords []string) error {
	kwAV, err := attributevalue.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords for %s/%s: %w", key.Source, key.ID, err)
	}

	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.jobsTable),
		Key: map[string]types.AttributeValue{
			"source": &types.AttributeValueMemberS{Value: key.Source},
			"id":     &types.AttributeValueMemberS{Value: key.ID},
		},
		UpdateExpression: aws.String("SET extracted_keywords = :kw"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":kw": kwAV,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update keywords for %s/%s: %w", key.Source, key.ID, err)
	}
	return nil
}

// ExistingKeys checks which of the given keys already exist in the jobs
// table. Keys are chunked to the BatchGetItem ceiling and looked up in
// parallel; unprocessed entries are re-issued with backoff before being
// treated as absent.
func (s *Store) ExistingKeys(ctx context.Context, keys []model.Key) (map[model.Key]struct{}, error) {
	existing := make(map[model.Key]struct{}, len(keys))
	if len(keys) == 0 {
		return existing, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for start := 0; start < len(keys); start += maxBatchGet {
		end := min(start+maxBatchGet, len(keys))
		chunk := keys[start:end]

		wg.Add(1)
		go func() {
			defer wg.Done()
			found, err := s.lookupChunk(ctx, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for k := range found {
				existing[k] = struct{}{}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return existing, nil
}

func (s *Store) lookupChunk(ctx context.Context, chunk []model.Key) (map[model.Key]struct{}, error) {
	found := make(map[model.Key]struct{}, len(chunk))

	reqKeys := make([]map[string]types.AttributeValue, 0, len(chunk))
	for _, k := range chunk {
		reqKeys = append(reqKeys, map[string]types.AttributeValue{
			"source": &types.AttributeValueMemberS{Value: k.Source},
			"id":     &types.AttributeValueMemberS{Value: k.ID},
		})
	}

	pending := reqKeys
	err := s.retry.DoWithNotify(ctx, func() error {
		out, err := s.db.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				s.jobsTable: {
					Keys:                 pending,
					ProjectionExpression: aws.String("#src, #id"),
					ExpressionAttributeNames: map[string]string{
						"#src": "source",
						"#id":  "id",
					},
				},
			},
		})
		if err != nil {
			return err
		}

		for _, item := range out.Responses[s.jobsTable] {
			var k model.Key
			var row struct {
				Source string `dynamodbav:"source"`
				ID     string `dynamodbav:"id"`
			}
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return fmt.Errorf("failed to unmarshal key row: %w", err)
			}
			k.Source, k.ID = row.Source, row.ID
			found[k] = struct{}{}
		}

		unprocessed := out.UnprocessedKeys[s.jobsTable].Keys
		if len(unprocessed) > 0 {
			pending = unprocessed
			return fmt.Errorf("%d unprocessed keys", len(unprocessed))
		}
		return nil
	}, func(attempt uint, err error) {
		s.logger.Debug("re-issuing existence lookup", "attempt", attempt, "reason", err)
	})

	// Exhausted retries on unprocessed keys: the remainder is treated as
	// absent, which is safe because posting writes are idempotent.
	if err != nil && len(found) == 0 && len(pending) == len(reqKeys) {
		return nil, fmt.Errorf("existence lookup failed: %w", err)
	}
	return found, nil
}
