package aggregator_test

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankfair_client/pkg/aggregator"
)

func constant(v interface{}) aggregator.Fetch {
	return func(context.Context, aggregator.Values) (interface{}, error) { return v, nil }
}

func failing() aggregator.Fetch {
	return func(context.Context, aggregator.Values) (interface{}, error) {
		return nil, errors.New("node unavailable")
	}
}

func TestRun_DependencyChain(t *testing.T) {
	plan, err := aggregator.NewPlan(
		aggregator.Read{Name: "unlocked", Fetch: constant(big.NewInt(10))},
		aggregator.Read{Name: "worth", After: []string{"unlocked"}, Fetch: func(_ context.Context, d aggregator.Values) (interface{}, error) {
			return new(big.Int).Mul(d.Big("unlocked"), big.NewInt(2)), nil
		}},
		aggregator.Read{Name: "liquidity", Fetch: constant(big.NewInt(15))},
		aggregator.Read{Name: "withdrawable", After: []string{"worth", "liquidity"}, Fetch: func(_ context.Context, d aggregator.Values) (interface{}, error) {
			w, l := d.Big("worth"), d.Big("liquidity")
			if w.Cmp(l) < 0 {
				return w, nil
			}
			return l, nil
		}},
	)
	require.NoError(t, err)

	got := aggregator.Run(context.Background(), plan)
	assert.Equal(t, int64(20), got.Big("worth").Int64())
	assert.Equal(t, int64(15), got.Big("withdrawable").Int64())
}

func TestRun_FailureLeavesFieldUnsetAndSkipsDependents(t *testing.T) {
	var dependentCalls int32
	plan := aggregator.MustPlan(
		aggregator.Read{Name: "balance", Fetch: failing()},
		aggregator.Read{Name: "symbol", Fetch: constant("DAI")},
		aggregator.Read{Name: "balanceWorth", After: []string{"balance"}, Fetch: func(context.Context, aggregator.Values) (interface{}, error) {
			atomic.AddInt32(&dependentCalls, 1)
			return big.NewInt(1), nil
		}},
	)

	got := aggregator.Run(context.Background(), plan)
	assert.False(t, got.Has("balance"))
	assert.Nil(t, got.Big("balance"))
	assert.False(t, got.Has("balanceWorth"))
	assert.Equal(t, "DAI", got.String("symbol"))
	assert.Zero(t, atomic.LoadInt32(&dependentCalls))
}

func TestRun_DepsOnlyExposeDeclared(t *testing.T) {
	plan := aggregator.MustPlan(
		aggregator.Read{Name: "a", Fetch: constant("x")},
		aggregator.Read{Name: "b", Fetch: constant("y")},
		aggregator.Read{Name: "c", After: []string{"a"}, Fetch: func(_ context.Context, d aggregator.Values) (interface{}, error) {
			if d.Has("b") {
				return nil, errors.New("leaked undeclared dependency")
			}
			return d.String("a") + "!", nil
		}},
	)
	got := aggregator.Run(context.Background(), plan)
	assert.Equal(t, "x!", got.String("c"))
}

func TestNewPlan_Rejects(t *testing.T) {
	_, err := aggregator.NewPlan(aggregator.Read{Name: "a", After: []string{"ghost"}, Fetch: constant(1)})
	assert.Error(t, err)

	_, err = aggregator.NewPlan(
		aggregator.Read{Name: "a", After: []string{"b"}, Fetch: constant(1)},
		aggregator.Read{Name: "b", After: []string{"a"}, Fetch: constant(1)},
	)
	assert.Error(t, err)

	_, err = aggregator.NewPlan(
		aggregator.Read{Name: "a", Fetch: constant(1)},
		aggregator.Read{Name: "a", Fetch: constant(2)},
	)
	assert.Error(t, err)
}

func TestStore_LastResolvedWins(t *testing.T) {
	var s aggregator.Store
	slow := aggregator.Values{"balance": big.NewInt(1)}
	fast := aggregator.Values{"balance": big.NewInt(2)}

	// The earlier request resolves last and overwrites the later one.
	s.Set(fast)
	s.Set(slow)

	got, version := s.Get()
	assert.Equal(t, int64(1), got.Big("balance").Int64())
	assert.Equal(t, uint64(2), version)
}
