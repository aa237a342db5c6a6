package memory

import (
	"context"
	"fmt"
	"sync"

	"magbot/internal/access"
	"magbot/internal/collateral/models"
	"magbot/internal/collateral/store"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
)

// InMemoryStore keeps collateral instances in process memory, with the same
// per-instance writer lock and staging overlay as the verification store.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[domain.Account]*instanceData
}

type operatorKey struct {
	owner    domain.Account
	operator domain.Account
}

type instanceData struct {
	txMu sync.Mutex

	state     *models.State
	tokens    map[domain.CollateralID]*models.Token
	bySBT     map[domain.TokenID]domain.CollateralID
	balances  map[domain.Account]uint64
	operators map[operatorKey]struct{}
	members   access.Members
}

func newInstanceData() *instanceData {
	return &instanceData{
		tokens:    make(map[domain.CollateralID]*models.Token),
		bySBT:     make(map[domain.TokenID]domain.CollateralID),
		balances:  make(map[domain.Account]uint64),
		operators: make(map[operatorKey]struct{}),
		members:   make(access.Members),
	}
}

var _ store.Store = (*InMemoryStore)(nil)

func New() *InMemoryStore {
	return &InMemoryStore{instances: make(map[domain.Account]*instanceData)}
}

func (s *InMemoryStore) read(instance domain.Account) *instanceData {
	return s.instances[instance]
}

func (s *InMemoryStore) State(_ context.Context, instance domain.Account) (*models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.read(instance)
	if d == nil || d.state == nil {
		return nil, sentinel.ErrNotFound
	}
	c := *d.state
	return &c, nil
}

func (s *InMemoryStore) Token(_ context.Context, instance domain.Account, id domain.CollateralID) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.read(instance)
	if d == nil {
		return nil, sentinel.ErrNotFound
	}
	return d.token(id)
}

func (s *InMemoryStore) TokenBySBT(_ context.Context, instance domain.Account, sbt domain.TokenID) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.read(instance)
	if d == nil {
		return nil, sentinel.ErrNotFound
	}
	id, ok := d.bySBT[sbt]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.token(id)
}

func (s *InMemoryStore) BalanceOf(_ context.Context, instance, owner domain.Account) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.read(instance)
	if d == nil {
		return 0, nil
	}
	return d.balances[owner], nil
}

func (s *InMemoryStore) IsApprovedForAll(_ context.Context, instance, owner, operator domain.Account) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.read(instance)
	if d == nil {
		return false, nil
	}
	_, ok := d.operators[operatorKey{owner, operator}]
	return ok, nil
}

func (s *InMemoryStore) HasRole(_ context.Context, instance domain.Account, role access.Role, account domain.Account) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.read(instance)
	if d == nil {
		return false, nil
	}
	return d.members.Has(role, account), nil
}

func (s *InMemoryStore) RunInTx(ctx context.Context, instance domain.Account, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	d, ok := s.instances[instance]
	if !ok {
		d = newInstanceData()
		s.instances[instance] = d
	}
	s.mu.Unlock()

	d.txMu.Lock()
	defer d.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:     s,
		instance:  instance,
		data:      d,
		tokens:    make(map[domain.CollateralID]*models.Token),
		bySBT:     make(map[domain.TokenID]domain.CollateralID),
		operators: make(map[operatorKey]bool),
		members:   d.members.Stage(),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	tx.commit()
	s.mu.Unlock()
	return nil
}

func (d *instanceData) token(id domain.CollateralID) (*models.Token, error) {
	t, ok := d.tokens[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *t
	return &c, nil
}

// memTx stages changes for one instance. Staged tokens are full copies that
// replace the committed record on commit.
type memTx struct {
	store    *InMemoryStore
	instance domain.Account
	data     *instanceData

	state     *models.State
	tokens    map[domain.CollateralID]*models.Token
	bySBT     map[domain.TokenID]domain.CollateralID
	operators map[operatorKey]bool
	members   *access.StagedMembers
}

func (t *memTx) bound(instance domain.Account) error {
	if instance != t.instance {
		return fmt.Errorf("transaction is bound to instance %s, not %s", t.instance, instance)
	}
	return nil
}

func (t *memTx) State(ctx context.Context, instance domain.Account) (*models.State, error) {
	if instance != t.instance {
		return t.store.State(ctx, instance)
	}
	st := t.state
	if st == nil {
		st = t.data.state
	}
	if st == nil {
		return nil, sentinel.ErrNotFound
	}
	c := *st
	return &c, nil
}

func (t *memTx) Token(ctx context.Context, instance domain.Account, id domain.CollateralID) (*models.Token, error) {
	if instance != t.instance {
		return t.store.Token(ctx, instance, id)
	}
	if tok, ok := t.tokens[id]; ok {
		c := *tok
		return &c, nil
	}
	return t.data.token(id)
}

func (t *memTx) TokenBySBT(ctx context.Context, instance domain.Account, sbt domain.TokenID) (*models.Token, error) {
	if instance != t.instance {
		return t.store.TokenBySBT(ctx, instance, sbt)
	}
	if id, ok := t.bySBT[sbt]; ok {
		return t.Token(ctx, instance, id)
	}
	if id, ok := t.data.bySBT[sbt]; ok {
		return t.data.token(id)
	}
	return nil, sentinel.ErrNotFound
}

func (t *memTx) BalanceOf(ctx context.Context, instance, owner domain.Account) (uint64, error) {
	if instance != t.instance {
		return t.store.BalanceOf(ctx, instance, owner)
	}
	n := t.data.balances[owner]
	for id, staged := range t.tokens {
		if committed, ok := t.data.tokens[id]; ok && committed.Owner == owner {
			n--
		}
		if staged.Owner == owner {
			n++
		}
	}
	return n, nil
}

func (t *memTx) IsApprovedForAll(ctx context.Context, instance, owner, operator domain.Account) (bool, error) {
	if instance != t.instance {
		return t.store.IsApprovedForAll(ctx, instance, owner, operator)
	}
	if approved, ok := t.operators[operatorKey{owner, operator}]; ok {
		return approved, nil
	}
	_, ok := t.data.operators[operatorKey{owner, operator}]
	return ok, nil
}

func (t *memTx) HasRole(ctx context.Context, instance domain.Account, role access.Role, account domain.Account) (bool, error) {
	if instance != t.instance {
		return t.store.HasRole(ctx, instance, role, account)
	}
	return t.members.Has(role, account), nil
}

func (t *memTx) AddRoleMember(_ context.Context, instance domain.Account, role access.Role, account domain.Account) error {
	if err := t.bound(instance); err != nil {
		return err
	}
	t.members.Add(role, account)
	return nil
}

func (t *memTx) RemoveRoleMember(_ context.Context, instance domain.Account, role access.Role, account domain.Account) error {
	if err := t.bound(instance); err != nil {
		return err
	}
	t.members.Remove(role, account)
	return nil
}

func (t *memTx) CreateState(_ context.Context, state *models.State) error {
	if err := t.bound(state.Instance); err != nil {
		return err
	}
	if t.state != nil || t.data.state != nil {
		return sentinel.ErrConflict
	}
	c := *state
	t.state = &c
	return nil
}

func (t *memTx) SaveState(_ context.Context, state *models.State) error {
	if err := t.bound(state.Instance); err != nil {
		return err
	}
	if t.state == nil && t.data.state == nil {
		return sentinel.ErrNotFound
	}
	c := *state
	t.state = &c
	return nil
}

func (t *memTx) InsertToken(ctx context.Context, instance domain.Account, token *models.Token) error {
	if err := t.bound(instance); err != nil {
		return err
	}
	if _, err := t.Token(ctx, instance, token.ID); err == nil {
		return sentinel.ErrConflict
	}
	if _, err := t.TokenBySBT(ctx, instance, token.SBTTokenID); err == nil {
		return sentinel.ErrConflict
	}
	c := *token
	t.tokens[c.ID] = &c
	t.bySBT[c.SBTTokenID] = c.ID
	return nil
}

func (t *memTx) SaveToken(ctx context.Context, instance domain.Account, token *models.Token) error {
	if err := t.bound(instance); err != nil {
		return err
	}
	if _, err := t.Token(ctx, instance, token.ID); err != nil {
		return err
	}
	c := *token
	t.tokens[c.ID] = &c
	return nil
}

func (t *memTx) SetApprovalForAll(_ context.Context, instance, owner, operator domain.Account, approved bool) error {
	if err := t.bound(instance); err != nil {
		return err
	}
	t.operators[operatorKey{owner, operator}] = approved
	return nil
}

// commit merges the overlay. Caller holds the store write lock.
func (t *memTx) commit() {
	d := t.data
	if t.state != nil {
		d.state = t.state
	}
	for id, tok := range t.tokens {
		if prev, ok := d.tokens[id]; ok {
			d.balances[prev.Owner]--
			if d.balances[prev.Owner] == 0 {
				delete(d.balances, prev.Owner)
			}
		}
		d.tokens[id] = tok
		d.balances[tok.Owner]++
	}
	for sbt, id := range t.bySBT {
		d.bySBT[sbt] = id
	}
	for key, approved := range t.operators {
		if approved {
			d.operators[key] = struct{}{}
		} else {
			delete(d.operators, key)
		}
	}
	t.members.Commit()
}
