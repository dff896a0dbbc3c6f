package tradelog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/engine/tradelog"
)

type fakeStore struct {
	created []domain.ArbExecution
	err     error
}

func (f *fakeStore) Create(ctx context.Context, exec domain.ArbExecution) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, exec)
	return nil
}

func TestPostgresSink_RecordMapsResultToArbExecution(t *testing.T) {
	store := &fakeStore{}
	sink := tradelog.NewPostgresSink(store)

	result := domain.ExecutionResult{
		OpportunityID: "opp-1",
		Success:       true,
		ActualProfit:  10,
		GasCost:       2,
		Timestamp:     time.Now(),
	}
	require.NoError(t, sink.Record(context.Background(), result))
	require.Len(t, store.created, 1)
	require.Equal(t, "opp-1", store.created[0].OpportunityID)
	require.Equal(t, domain.ArbExecFilled, store.created[0].Status)
	require.Equal(t, 8.0, store.created[0].NetPnLUSD)
}

func TestPostgresSink_RecordMarksFailedStatus(t *testing.T) {
	store := &fakeStore{}
	sink := tradelog.NewPostgresSink(store)

	result := domain.ExecutionResult{OpportunityID: "opp-2", Success: false, Timestamp: time.Now()}
	require.NoError(t, sink.Record(context.Background(), result))
	require.Equal(t, domain.ArbExecFailed, store.created[0].Status)
}

func TestMulti_RecordFansOutAndJoinsErrors(t *testing.T) {
	ok := &fakeStore{}
	failing := &fakeStore{err: errors.New("boom")}
	multi := tradelog.Multi{tradelog.NewPostgresSink(ok), tradelog.NewPostgresSink(failing)}

	result := domain.ExecutionResult{OpportunityID: "opp-3", Success: true, Timestamp: time.Now()}
	err := multi.Record(context.Background(), result)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2 sinks failed")
	require.Len(t, ok.created, 1)
}
