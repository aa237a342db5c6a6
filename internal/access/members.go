package access

import "magbot/pkg/domain"

// MemberKey identifies one (role, account) membership.
type MemberKey struct {
	Role    Role
	Account domain.Account
}

// Members is a committed role membership set for one registry instance.
type Members map[MemberKey]struct{}

func (m Members) Has(role Role, account domain.Account) bool {
	_, ok := m[MemberKey{Role: role, Account: account}]
	return ok
}

// Stage opens a staging overlay on m. Changes become visible to other
// readers only after Commit.
func (m Members) Stage() *StagedMembers {
	return &StagedMembers{base: m, toAdd: map[MemberKey]struct{}{}, toDelete: map[MemberKey]struct{}{}}
}

// StagedMembers buffers grants and revocations on top of a committed set.
type StagedMembers struct {
	base     Members
	toAdd    map[MemberKey]struct{}
	toDelete map[MemberKey]struct{}
}

func (s *StagedMembers) Has(role Role, account domain.Account) bool {
	key := MemberKey{Role: role, Account: account}
	if _, ok := s.toDelete[key]; ok {
		return false
	}
	if _, ok := s.toAdd[key]; ok {
		return true
	}
	return s.base.Has(role, account)
}

func (s *StagedMembers) Add(role Role, account domain.Account) {
	key := MemberKey{Role: role, Account: account}
	delete(s.toDelete, key)
	s.toAdd[key] = struct{}{}
}

func (s *StagedMembers) Remove(role Role, account domain.Account) {
	key := MemberKey{Role: role, Account: account}
	delete(s.toAdd, key)
	s.toDelete[key] = struct{}{}
}

// Commit applies the staged changes to the base set. Callers hold the
// write lock guarding the base.
func (s *StagedMembers) Commit() {
	for key := range s.toDelete {
		delete(s.base, key)
	}
	for key := range s.toAdd {
		s.base[key] = struct{}{}
	}
}

func (s *StagedMembers) IsStaged() bool {
	return len(s.toAdd) != 0 || len(s.toDelete) != 0
}
