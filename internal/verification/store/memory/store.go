package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"magbot/internal/access"
	"magbot/internal/verification/models"
	"magbot/internal/verification/store"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
)

// InMemoryStore keeps every instance in process memory. Writers on one
// instance are serialized by a per-instance mutex and buffer their changes
// in a staging overlay that is merged under the store lock on success.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[domain.Account]*instanceData
}

type instanceData struct {
	txMu sync.Mutex

	state     *models.State
	tokens    map[domain.TokenID]*models.Token
	byAccount map[domain.Account]domain.TokenID
	byData    map[string]domain.TokenID
	members   access.Members
}

func newInstanceData() *instanceData {
	return &instanceData{
		tokens:    make(map[domain.TokenID]*models.Token),
		byAccount: make(map[domain.Account]domain.TokenID),
		byData:    make(map[string]domain.TokenID),
		members:   make(access.Members),
	}
}

var _ store.Store = (*InMemoryStore)(nil)

func New() *InMemoryStore {
	return &InMemoryStore{instances: make(map[domain.Account]*instanceData)}
}

func (s *InMemoryStore) State(_ context.Context, instance domain.Account) (*models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.instances[instance]
	if d == nil || d.state == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneState(d.state), nil
}

func (s *InMemoryStore) Token(_ context.Context, instance domain.Account, id domain.TokenID) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.instances[instance]
	if d == nil {
		return nil, sentinel.ErrNotFound
	}
	return d.token(id)
}

func (s *InMemoryStore) TokenByAccount(_ context.Context, instance, account domain.Account) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.instances[instance]
	if d == nil {
		return nil, sentinel.ErrNotFound
	}
	id, ok := d.byAccount[account]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.token(id)
}

func (s *InMemoryStore) TokenByVerification(_ context.Context, instance domain.Account, datum string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.instances[instance]
	if d == nil {
		return nil, sentinel.ErrNotFound
	}
	id, ok := d.byData[datum]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.token(id)
}

func (s *InMemoryStore) BalanceOf(_ context.Context, instance, account domain.Account) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.instances[instance]
	if d == nil {
		return 0, nil
	}
	if _, ok := d.byAccount[account]; ok {
		return 1, nil
	}
	return 0, nil
}

func (s *InMemoryStore) HasRole(_ context.Context, instance domain.Account, role access.Role, account domain.Account) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.instances[instance]
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
		tokens:    make(map[domain.TokenID]*models.Token),
		byAccount: make(map[domain.Account]domain.TokenID),
		byData:    make(map[string]domain.TokenID),
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

func (d *instanceData) token(id domain.TokenID) (*models.Token, error) {
	t, ok := d.tokens[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *t
	return &c, nil
}

// memTx reads committed instance data without the store lock: only the
// holder of txMu ever writes it.
type memTx struct {
	store    *InMemoryStore
	instance domain.Account
	data     *instanceData

	state     *models.State
	tokens    map[domain.TokenID]*models.Token
	byAccount map[domain.Account]domain.TokenID
	byData    map[string]domain.TokenID
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
	if t.state != nil {
		return cloneState(t.state), nil
	}
	if t.data.state == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneState(t.data.state), nil
}

func (t *memTx) Token(ctx context.Context, instance domain.Account, id domain.TokenID) (*models.Token, error) {
	if instance != t.instance {
		return t.store.Token(ctx, instance, id)
	}
	if tok, ok := t.tokens[id]; ok {
		c := *tok
		return &c, nil
	}
	return t.data.token(id)
}

func (t *memTx) TokenByAccount(ctx context.Context, instance, account domain.Account) (*models.Token, error) {
	if instance != t.instance {
		return t.store.TokenByAccount(ctx, instance, account)
	}
	if id, ok := t.byAccount[account]; ok {
		return t.Token(ctx, instance, id)
	}
	if id, ok := t.data.byAccount[account]; ok {
		return t.data.token(id)
	}
	return nil, sentinel.ErrNotFound
}

func (t *memTx) TokenByVerification(ctx context.Context, instance domain.Account, datum string) (*models.Token, error) {
	if instance != t.instance {
		return t.store.TokenByVerification(ctx, instance, datum)
	}
	if id, ok := t.byData[datum]; ok {
		return t.Token(ctx, instance, id)
	}
	if id, ok := t.data.byData[datum]; ok {
		return t.data.token(id)
	}
	return nil, sentinel.ErrNotFound
}

func (t *memTx) BalanceOf(ctx context.Context, instance, account domain.Account) (uint64, error) {
	if _, err := t.TokenByAccount(ctx, instance, account); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return 1, nil
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
	t.state = cloneState(state)
	return nil
}

func (t *memTx) SaveState(_ context.Context, state *models.State) error {
	if err := t.bound(state.Instance); err != nil {
		return err
	}
	if t.state == nil && t.data.state == nil {
		return sentinel.ErrNotFound
	}
	t.state = cloneState(state)
	return nil
}

func (t *memTx) InsertToken(_ context.Context, instance domain.Account, token *models.Token) error {
	if err := t.bound(instance); err != nil {
		return err
	}
	if _, ok := t.tokens[token.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := t.data.tokens[token.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := t.byAccount[token.Account]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := t.data.byAccount[token.Account]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := t.byData[token.Verification]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := t.data.byData[token.Verification]; ok {
		return sentinel.ErrConflict
	}
	c := *token
	t.tokens[c.ID] = &c
	t.byAccount[c.Account] = c.ID
	t.byData[c.Verification] = c.ID
	return nil
}

// commit merges the overlay. Caller holds the store write lock.
func (t *memTx) commit() {
	d := t.data
	if t.state != nil {
		d.state = t.state
	}
	for id, tok := range t.tokens {
		d.tokens[id] = tok
	}
	for account, id := range t.byAccount {
		d.byAccount[account] = id
	}
	for datum, id := range t.byData {
		d.byData[datum] = id
	}
	t.members.Commit()
}

func cloneState(s *models.State) *models.State {
	c := *s
	return &c
}
