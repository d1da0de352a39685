package service

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bankfair_client/models"
	"bankfair_client/pkg/wizard"
)

// DefaultWizardTTL is how long an untouched wizard stays open.
const DefaultWizardTTL = 30 * time.Minute

type openWizard struct {
	engine  *wizard.Engine
	account common.Address
	touched time.Time
}

// WizardService keeps the wizards the user has open.
type WizardService struct {
	catalog  *catalog
	session  Session
	balances *PoolService
	explorer string
	base     context.Context
	ttl      time.Duration
	now      func() time.Time

	mu   sync.Mutex
	open map[string]*openWizard
}

func NewWizardService(deps Deps, balances *PoolService) *WizardService {
	ttl := deps.WizardTTL
	if ttl <= 0 {
		ttl = DefaultWizardTTL
	}
	return &WizardService{
		catalog:  &catalog{pool: deps.Pool, token: deps.Token, meta: deps.Meta, notifier: deps.Notifier},
		session:  deps.Session,
		balances: balances,
		explorer: strings.TrimRight(deps.ExplorerURL, "/"),
		base:     deps.Base,
		ttl:      ttl,
		now:      time.Now,
		open:     map[string]*openWizard{},
	}
}

// Open builds a wizard of kind for the logged-in account and loads its limits.
func (s *WizardService) Open(ctx context.Context, kind, loanID string) (models.Wizard, error) {
	id, err := s.session.RequireLogin()
	if err != nil {
		return models.Wizard{}, err
	}

	t := target{account: id.Address}
	opts := []wizard.Option{wizard.WithContext(ctxAccount, id.Address)}
	if needsLoan(kind) {
		if t, err = s.loanTarget(ctx, id.Address, loanID); err != nil {
			return models.Wizard{}, err
		}
		opts = append(opts,
			wizard.WithContext(ctxLoan, t.loan),
			wizard.WithContext(ctxManager, t.manager),
		)
	}

	def, err := s.catalog.define(kind, t)
	if err != nil {
		return models.Wizard{}, err
	}
	wid := uuid.NewString()
	opts = append(opts, wizard.WithOnComplete(s.onComplete))
	engine, err := wizard.New(wid, def, opts...)
	if err != nil {
		return models.Wizard{}, err
	}
	engine.Mount(ctx)

	s.evictIdle()
	s.mu.Lock()
	s.open[wid] = &openWizard{engine: engine, account: id.Address, touched: s.now()}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"wizard": kind, "wizard_id": wid, "wallet": id.Address.Hex()}).Info("wizard opened")
	return s.view(engine.Snapshot()), nil
}

func (s *WizardService) loanTarget(ctx context.Context, account common.Address, loanID string) (target, error) {
	if loanID == "" {
		return target{}, ErrLoanRequired
	}
	n, ok := new(big.Int).SetString(loanID, 10)
	if !ok || n.Sign() <= 0 {
		return target{}, errors.Wrapf(ErrLoanNotFound, "loan %q", loanID)
	}
	loan, err := s.catalog.pool.Loan(ctx, n)
	if err != nil {
		return target{}, err
	}
	if !loan.Exists() {
		return target{}, errors.Wrapf(ErrLoanNotFound, "loan %s", loanID)
	}
	manager, err := s.catalog.pool.Manager(ctx)
	if err != nil {
		return target{}, err
	}
	return target{account: account, manager: manager, loan: loan}, nil
}

func (s *WizardService) get(id string) (*openWizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.open[id]
	if !ok {
		return nil, errors.Wrap(ErrWizardNotFound, id)
	}
	w.touched = s.now()
	return w, nil
}

// evictIdle closes wizards nobody touched within the TTL. Busy wizards are
// kept until their step settles.
func (s *WizardService) evictIdle() {
	cutoff := s.now().Add(-s.ttl)
	var idle []*wizard.Engine
	s.mu.Lock()
	for id, w := range s.open {
		if w.touched.Before(cutoff) && !w.engine.Snapshot().Busy {
			idle = append(idle, w.engine)
			delete(s.open, id)
		}
	}
	s.mu.Unlock()
	for _, e := range idle {
		logrus.WithFields(logrus.Fields{"wizard": e.Kind(), "wizard_id": e.ID()}).Info("idle wizard closed")
		e.Close()
	}
}

func (s *WizardService) Get(id string) (models.Wizard, error) {
	w, err := s.get(id)
	if err != nil {
		return models.Wizard{}, err
	}
	return s.view(w.engine.Snapshot()), nil
}

func (s *WizardService) SetInputs(id string, in models.WizardInputs) (models.Wizard, error) {
	w, err := s.get(id)
	if err != nil {
		return models.Wizard{}, err
	}
	if in.Amount != nil {
		if err := w.engine.SetInput(InAmount, *in.Amount); err != nil {
			return models.Wizard{}, err
		}
	}
	if in.DurationDays != nil {
		if err := w.engine.SetInput(InDuration, *in.DurationDays); err != nil {
			return models.Wizard{}, err
		}
	}
	return s.view(w.engine.Snapshot()), nil
}

// Next starts the next step in the background. The returned view shows the
// wizard busy on the new step.
func (s *WizardService) Next(id string) (models.Wizard, error) {
	w, err := s.get(id)
	if err != nil {
		return models.Wizard{}, err
	}
	// In-flight wizards are not cancelled on account changes; the step
	// still signs with whatever account the wallet has active now.
	if cur := s.session.Current(); cur.Address != w.account {
		logrus.WithFields(logrus.Fields{
			"wizard_id": id,
			"opened_by": w.account.Hex(),
			"current":   cur.Address.Hex(),
		}).Warn("wizard advanced under a different account than it was opened with")
	}
	if err := w.engine.Start(s.base); err != nil {
		return s.view(w.engine.Snapshot()), err
	}
	return s.view(w.engine.Snapshot()), nil
}

// Close discards the wizard; its completion callback refreshes balances.
func (s *WizardService) Close(id string) error {
	s.mu.Lock()
	w, ok := s.open[id]
	delete(s.open, id)
	s.mu.Unlock()
	if !ok {
		return errors.Wrap(ErrWizardNotFound, id)
	}
	w.engine.Close()
	return nil
}

func (s *WizardService) onComplete() {
	if s.balances == nil {
		return
	}
	go func() {
		if _, err := s.balances.RefreshBalances(s.base); err != nil {
			logrus.WithError(err).Debug("balances refresh after wizard skipped")
		}
	}()
}

func (s *WizardService) view(st wizard.State) models.Wizard {
	v := models.Wizard{
		ID:         st.ID,
		Kind:       st.Kind,
		Steps:      st.Labels,
		ActiveStep: st.ActiveStep,
		Terminal:   st.Terminal,
		Busy:       st.Busy,
		CanNext:    st.CanAdvance,
		Inputs:     st.Inputs,
		Limits:     map[string]string{},
		Outcome:    st.Outcome,
		Error:      st.LastError,
		ErrorKind:  st.ErrorKind,
	}
	for name, x := range st.Limits {
		v.Limits[name] = s.catalog.formatLimit(name, x)
	}
	if r := st.LastReceipt; r != nil {
		v.TxHash = r.TxHash.Hex()
		v.TxLink = s.TxLink(v.TxHash)
		v.TxStatus = "success"
		if !r.Status {
			v.TxStatus = "reverted"
		}
	}
	return v
}

// TxLink points at the transaction in the block explorer.
func (s *WizardService) TxLink(hash string) string {
	if s.explorer == "" {
		return ""
	}
	return s.explorer + "/tx/" + hash
}
