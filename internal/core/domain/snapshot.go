package domain

// Snapshot is the full, ordered collection of accounts as read from storage
// for one logical operation. It is mutated in memory and written back whole.
type Snapshot []Account

// Clone returns a deep copy so callers never share token expiry pointers with
// the store.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	out := make(Snapshot, len(s))
	for i, a := range s {
		out[i] = a
		if a.TokenExpiresAt != nil {
			exp := *a.TokenExpiresAt
			out[i].TokenExpiresAt = &exp
		}
	}
	return out
}

// FindByIdentifier looks an account up by email when the identifier contains
// '@', otherwise by username. Matching is exact and case-sensitive.
func (s Snapshot) FindByIdentifier(identifier string) (int, bool) {
	if IsEmailIdentifier(identifier) {
		return s.find(func(a *Account) bool { return a.Email == identifier })
	}
	return s.find(func(a *Account) bool { return a.Username == identifier })
}

// FindByToken returns the index of the account holding token.
func (s Snapshot) FindByToken(token string) (int, bool) {
	if token == "" {
		return -1, false
	}
	return s.find(func(a *Account) bool { return a.VerificationToken == token })
}

// InsertIfUnique appends account unless its username or email is taken.
func (s *Snapshot) InsertIfUnique(account Account) error {
	if _, found := s.find(func(a *Account) bool {
		return a.Username == account.Username || a.Email == account.Email
	}); found {
		return ErrDuplicateAccount
	}
	*s = append(*s, account)
	return nil
}

func (s Snapshot) find(match func(*Account) bool) (int, bool) {
	for i := range s {
		if match(&s[i]) {
			return i, true
		}
	}
	return -1, false
}
