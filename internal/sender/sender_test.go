package sender

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
	"github.com/GabrielNunesIT/analytics-transport/internal/model"
	"github.com/GabrielNunesIT/analytics-transport/internal/request"
	"github.com/GabrielNunesIT/analytics-transport/internal/testutil"
)

// fakePoster records every batch it is asked to post.
type fakePoster struct {
	mu      sync.Mutex
	batches []model.Batch
	appIDs  []string
	closed  bool
	respond func(batch model.Batch) model.Response
}

func (f *fakePoster) Post(_ context.Context, appID string, batch model.Batch) model.Response {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.appIDs = append(f.appIDs, appID)
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(batch)
	}
	return model.NewResponse(200, "")
}

func (f *fakePoster) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type posterSet struct {
	mu      sync.Mutex
	posters []*fakePoster
	respond func(batch model.Batch) model.Response
}

func (s *posterSet) factory() Poster {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &fakePoster{respond: s.respond}
	s.posters = append(s.posters, p)
	return p
}

func records(n int) model.Batch {
	batch := make(model.Batch, n)
	for i := range batch {
		batch[i] = model.Record(fmt.Sprintf(`{"n":%d}`, i))
	}
	return batch
}

func TestPool_Send_EveryChunkOnce(t *testing.T) {
	set := &posterSet{}
	pool := NewPool(3, set.factory, testutil.NewTestLogger())

	results, err := pool.Send(context.Background(), "abc", records(10), 3)
	require.NoError(t, err)

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.True(t, r.Response.OK())
	}
	assert.Equal(t, []int{3, 3, 3, 1}, []int{results[0].Records, results[1].Records, results[2].Records, results[3].Records})

	seen := make(map[string]int)
	total := 0
	for _, p := range set.posters {
		assert.True(t, p.closed, "poster should be closed when its worker exits")
		for _, b := range p.batches {
			seen[string(b[0])]++
			total += len(b)
		}
		for _, id := range p.appIDs {
			assert.Equal(t, "abc", id)
		}
	}
	assert.Equal(t, 10, total)
	for first, count := range seen {
		assert.Equal(t, 1, count, "chunk starting with %s posted more than once", first)
	}
	assert.Len(t, set.posters, 3)
}

func TestPool_Send_ResultsInChunkOrder(t *testing.T) {
	set := &posterSet{
		respond: func(batch model.Batch) model.Response {
			return model.NewResponse(200, string(batch[0]))
		},
	}
	pool := NewPool(4, set.factory, testutil.NewTestLogger())

	results, err := pool.Send(context.Background(), "abc", records(8), 1)
	require.NoError(t, err)

	require.Len(t, results, 8)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i), r.Response.Error)
	}
}

func TestPool_Send_NoMoreWorkersThanChunks(t *testing.T) {
	set := &posterSet{}
	pool := NewPool(8, set.factory, testutil.NewTestLogger())

	_, err := pool.Send(context.Background(), "abc", records(5), 0)
	require.NoError(t, err)

	assert.Len(t, set.posters, 1)
	assert.Len(t, set.posters[0].batches, 1)
	assert.Len(t, set.posters[0].batches[0], 5)
}

func TestPool_Send_EmptyBatch(t *testing.T) {
	set := &posterSet{}
	pool := NewPool(2, set.factory, testutil.NewTestLogger())

	results, err := pool.Send(context.Background(), "abc", nil, 10)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Empty(t, set.posters)
}

func TestPool_Send_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var posted atomic.Int32
	set := &posterSet{
		respond: func(batch model.Batch) model.Response {
			posted.Add(1)
			return model.NewResponse(200, "")
		},
	}
	pool := NewPool(1, set.factory, testutil.NewTestLogger())

	_, err := pool.Send(ctx, "abc", records(50), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, int(posted.Load()), 50)
}

func TestNewPool_AtLeastOneWorker(t *testing.T) {
	pool := NewPool(0, (&posterSet{}).factory, testutil.NewTestLogger())
	assert.Equal(t, 1, pool.Workers())
}

func TestSummary(t *testing.T) {
	results := []Result{
		{Response: model.NewResponse(200, "")},
		{Response: model.NewResponse(200, "partial")},
		{Response: model.NewResponse(400, "invalid")},
		{Response: model.ConnectionError(fmt.Errorf("refused"))},
		{Response: model.NewResponse(204, "")},
	}

	ok, failed := Summary(results)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, failed)
}

func TestDispatcherFactory_StubbedDispatchers(t *testing.T) {
	stub := request.NewStub(true)
	log := testutil.NewTestLogger()
	var built atomic.Int32

	factory := DispatcherFactory(func() *request.Dispatcher {
		built.Add(1)
		return request.NewDispatcher(config.DefaultRequestConfig(), log, request.WithStub(stub))
	})
	pool := NewPool(2, factory, log)

	results, err := pool.Send(context.Background(), "abc", records(4), 2)
	require.NoError(t, err)

	assert.Equal(t, int32(2), built.Load())
	for _, r := range results {
		assert.Equal(t, model.NewResponse(200, ""), r.Response)
	}
}
