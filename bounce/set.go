package bounce

import "sort"

// AddressSet holds unique normalized rejected addresses.
type AddressSet map[string]struct{}

// NewAddressSet returns a set holding addrs.
func NewAddressSet(addrs ...string) AddressSet {
	s := make(AddressSet, len(addrs))
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

// Add inserts addr, which must already be normalized.
func (s AddressSet) Add(addr string) {
	s[addr] = struct{}{}
}

// Contains reports whether addr is a member.
func (s AddressSet) Contains(addr string) bool {
	_, ok := s[addr]
	return ok
}

// Union adds every member of other to s.
func (s AddressSet) Union(other AddressSet) {
	for a := range other {
		s[a] = struct{}{}
	}
}

// Len returns the number of members.
func (s AddressSet) Len() int {
	return len(s)
}

// Sorted returns the members in ascending byte order.
func (s AddressSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
