// Package aggregator runs ordered, possibly dependent, read-only ledger calls
// and collects whatever succeeded into a Values snapshot.
package aggregator

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bankfair_client/pkg/txerr"
)

// Fetch performs one read. deps holds every value the read declared in After.
type Fetch func(ctx context.Context, deps Values) (interface{}, error)

// Read is one named read. It runs only after every read in After succeeded.
type Read struct {
	Name  string
	After []string
	Fetch Fetch
}

// Plan is a validated, wave-ordered list of reads.
type Plan struct {
	waves [][]Read
}

// NewPlan checks names and dependencies and groups the reads into waves. A
// read lands in the first wave after all of its dependencies.
func NewPlan(reads ...Read) (*Plan, error) {
	byName := make(map[string]Read, len(reads))
	for _, r := range reads {
		if r.Name == "" || r.Fetch == nil {
			return nil, errors.Errorf("aggregator: read %q is incomplete", r.Name)
		}
		if _, dup := byName[r.Name]; dup {
			return nil, errors.Errorf("aggregator: duplicate read %q", r.Name)
		}
		byName[r.Name] = r
	}
	for _, r := range reads {
		for _, dep := range r.After {
			if _, ok := byName[dep]; !ok {
				return nil, errors.Errorf("aggregator: read %q depends on unknown %q", r.Name, dep)
			}
		}
	}

	level := make(map[string]int, len(reads))
	var depth func(name string, seen map[string]bool) (int, error)
	depth = func(name string, seen map[string]bool) (int, error) {
		if l, ok := level[name]; ok {
			return l, nil
		}
		if seen[name] {
			return 0, errors.Errorf("aggregator: dependency cycle through %q", name)
		}
		seen[name] = true
		l := 0
		for _, dep := range byName[name].After {
			dl, err := depth(dep, seen)
			if err != nil {
				return 0, err
			}
			if dl+1 > l {
				l = dl + 1
			}
		}
		level[name] = l
		return l, nil
	}

	p := &Plan{}
	for _, r := range reads {
		l, err := depth(r.Name, map[string]bool{})
		if err != nil {
			return nil, err
		}
		for len(p.waves) <= l {
			p.waves = append(p.waves, nil)
		}
		p.waves[l] = append(p.waves[l], r)
	}
	return p, nil
}

// MustPlan is NewPlan for statically known plans.
func MustPlan(reads ...Read) *Plan {
	p, err := NewPlan(reads...)
	if err != nil {
		panic(err)
	}
	return p
}

// Run executes the plan. Reads in the same wave run concurrently. A failing
// read leaves its field unset and skips only the reads depending on it; Run
// itself never fails.
func Run(ctx context.Context, p *Plan) Values {
	out := Values{}
	if p == nil {
		return out
	}
	var mu sync.Mutex

	for _, wave := range p.waves {
		// Dependencies come from earlier waves, so the snapshot is stable
		// for the whole wave.
		snapshot := out.clone()

		var g errgroup.Group
		for _, r := range wave {
			r := r
			if missing := snapshot.missing(r.After); missing != "" {
				logrus.WithFields(logrus.Fields{"read": r.Name, "missing": missing}).
					Debug("aggregator: skipped, dependency unavailable")
				continue
			}
			g.Go(func() error {
				v, err := r.Fetch(ctx, snapshot.only(r.After))
				if err != nil {
					logrus.WithFields(logrus.Fields{
						"read": r.Name,
						"kind": txerr.KindRemoteRead.String(),
					}).Warnf("aggregator: %v", err)
					return nil
				}
				if v == nil {
					return nil
				}
				mu.Lock()
				out[r.Name] = v
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

// Values maps read names to results. Absent keys are unknown.
type Values map[string]interface{}

func (v Values) clone() Values {
	c := make(Values, len(v))
	for k, x := range v {
		c[k] = x
	}
	return c
}

func (v Values) only(names []string) Values {
	c := make(Values, len(names))
	for _, n := range names {
		c[n] = v[n]
	}
	return c
}

func (v Values) missing(names []string) string {
	for _, n := range names {
		if _, ok := v[n]; !ok {
			return n
		}
	}
	return ""
}

func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// Big returns the named *big.Int, or nil when unknown.
func (v Values) Big(name string) *big.Int {
	b, _ := v[name].(*big.Int)
	return b
}

func (v Values) String(name string) string {
	switch x := v[name].(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return ""
	}
}

func (v Values) Address(name string) common.Address {
	a, _ := v[name].(common.Address)
	return a
}

// Store keeps the most recently resolved snapshot. Concurrent refreshes may
// interleave; whichever resolves last wins.
type Store struct {
	mu      sync.RWMutex
	current Values
	version uint64
}

func (s *Store) Set(v Values) {
	s.mu.Lock()
	s.current = v
	s.version++
	s.mu.Unlock()
}

// Get returns the current snapshot and how many times it was replaced.
func (s *Store) Get() (Values, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.version
}

// Refresh runs p and stores the result.
func (s *Store) Refresh(ctx context.Context, p *Plan) Values {
	v := Run(ctx, p)
	s.Set(v)
	return v
}
