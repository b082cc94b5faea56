package assembler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/skillsift/skillsift/internal/model"
)

type fakeStore struct {
	existing    map[model.Key]struct{}
	existingErr error
	written     [][]model.JobPosting
	writeErrs   map[int]error // by call index
	writeCalls  int
	batches     []model.Batch
	putBatchErr error
}

func (f *fakeStore) ExistingKeys(_ context.Context, keys []model.Key) (map[model.Key]struct{}, error) {
	if f.existingErr != nil {
		return nil, f.existingErr
	}
	out := make(map[model.Key]struct{})
	for _, k := range keys {
		if _, ok := f.existing[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeStore) BulkWriteJobs(_ context.Context, postings []model.JobPosting) error {
	call := f.writeCalls
	f.writeCalls++
	if err, ok := f.writeErrs[call]; ok {
		return err
	}
	f.written = append(f.written, postings)
	return nil
}

func (f *fakeStore) PutBatch(_ context.Context, b model.Batch) error {
	if f.putBatchErr != nil {
		return f.putBatchErr
	}
	f.batches = append(f.batches, b)
	return nil
}

func newAssembler(store *fakeStore, batchSize int) *Assembler {
	return New(Config{Store: store, BatchSize: batchSize})
}

func raw(site, id string) model.RawPosting {
	return model.RawPosting{Site: site, ID: id, Title: "t", Description: "d"}
}

func TestAssembleDedupesWithinRun(t *testing.T) {
	// Scenario: 3 records, 2 of which share (source="indeed", id="1").
	store := &fakeStore{}
	a := newAssembler(store, 300)

	res, err := a.Assemble(context.Background(), []model.RawPosting{
		raw("indeed", "1"),
		raw("indeed", "1"),
		raw("indeed", "2"),
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if res.DupesInRun != 1 {
		t.Errorf("expected 1 in-run dupe, got %d", res.DupesInRun)
	}
	if res.NewPostings != 2 {
		t.Errorf("expected 2 new postings, got %d", res.NewPostings)
	}
	if len(store.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(store.batches))
	}
	if store.batches[0].Status != model.StatusInit {
		t.Errorf("batch must start in init, got %s", store.batches[0].Status)
	}
	if store.batches[0].TotalJobs != 2 {
		t.Errorf("expected total_jobs 2, got %d", store.batches[0].TotalJobs)
	}
}

func TestAssembleExcludesStoredDuplicates(t *testing.T) {
	store := &fakeStore{existing: map[model.Key]struct{}{
		{Source: "indeed", ID: "1"}: {},
	}}
	a := newAssembler(store, 300)

	res, err := a.Assemble(context.Background(), []model.RawPosting{
		raw("indeed", "1"),
		raw("indeed", "2"),
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if res.DupesInStore != 1 {
		t.Errorf("expected 1 stored dupe, got %d", res.DupesInStore)
	}
	if res.NewPostings != 1 {
		t.Errorf("expected 1 new posting, got %d", res.NewPostings)
	}
}

func TestAssembleIdempotentRerun(t *testing.T) {
	// A re-run where everything was already ingested writes nothing.
	store := &fakeStore{existing: map[model.Key]struct{}{
		{Source: "indeed", ID: "1"}: {},
		{Source: "indeed", ID: "2"}: {},
	}}
	a := newAssembler(store, 300)

	res, err := a.Assemble(context.Background(), []model.RawPosting{
		raw("indeed", "1"),
		raw("indeed", "2"),
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if res.NewPostings != 0 {
		t.Errorf("re-run must produce no new postings, got %d", res.NewPostings)
	}
	if store.writeCalls != 0 || len(store.batches) != 0 {
		t.Error("re-run must not write postings or batches")
	}
}

func TestAssemblePartitionsIntoGroups(t *testing.T) {
	store := &fakeStore{}
	a := newAssembler(store, 2)

	var postings []model.RawPosting
	for i := 0; i < 5; i++ {
		postings = append(postings, raw("indeed", fmt.Sprintf("id-%d", i)))
	}

	res, err := a.Assemble(context.Background(), postings)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(res.Groups) != 3 {
		t.Fatalf("expected 3 groups of size <=2, got %d", len(res.Groups))
	}

	// Every posting carries exactly the group it was committed under.
	for i, group := range store.written {
		for _, p := range group {
			if p.GroupID != store.batches[i].GroupID {
				t.Errorf("posting %s assigned to %s, batch is %s", p.ID, p.GroupID, store.batches[i].GroupID)
			}
			if p.CreatedAt.IsZero() {
				t.Error("posting must be stamped with created_at")
			}
		}
	}
}

func TestAssembleGroupFailureIsolation(t *testing.T) {
	// First group's write fails; the second still commits.
	store := &fakeStore{writeErrs: map[int]error{0: errors.New("throttled")}}
	a := newAssembler(store, 2)

	res, err := a.Assemble(context.Background(), []model.RawPosting{
		raw("indeed", "1"), raw("indeed", "2"),
		raw("indeed", "3"), raw("indeed", "4"),
	})
	if err != nil {
		t.Fatalf("Assemble must not fail the run for one group: %v", err)
	}
	if res.FailedGroups != 1 {
		t.Errorf("expected 1 failed group, got %d", res.FailedGroups)
	}
	if len(res.Groups) != 1 {
		t.Errorf("expected 1 committed group, got %d", len(res.Groups))
	}
	if len(store.batches) != 1 {
		t.Errorf("failed group must not create a batch; got %d batches", len(store.batches))
	}
}

func TestAssembleSkipsMalformed(t *testing.T) {
	store := &fakeStore{}
	a := newAssembler(store, 300)

	res, err := a.Assemble(context.Background(), []model.RawPosting{
		{Site: "indeed", ID: "", Title: "no id"},
		{Site: "indeed", ID: "1", Title: ""},
		{Site: "myspace", ID: "2", Title: "unknown source"},
		raw("indeed", "3"),
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if res.Skipped != 3 {
		t.Errorf("expected 3 skipped, got %d", res.Skipped)
	}
	if res.NewPostings != 1 {
		t.Errorf("expected 1 new posting, got %d", res.NewPostings)
	}
}

func TestAssembleExistenceCheckFailure(t *testing.T) {
	store := &fakeStore{existingErr: errors.New("dynamo down")}
	a := newAssembler(store, 300)

	_, err := a.Assemble(context.Background(), []model.RawPosting{raw("indeed", "1")})
	if err == nil {
		t.Fatal("expected error when the dedup check cannot run")
	}
	if store.writeCalls != 0 {
		t.Error("must not write postings without a dedup check")
	}
}
