package match

// PartnerKind distinguishes real partners from synthetic ones. Decided once
// at creation time and carried through, never re-inferred from the id shape.
type PartnerKind int

const (
	// PartnerReal is a live user with a persistent identity.
	PartnerReal PartnerKind = iota
	// PartnerSynthetic is a generated partner used when no live match exists.
	PartnerSynthetic
)

// Partner is the session-scoped descriptor of the matched peer.
type Partner struct {
	Kind         PartnerKind
	UserID       int64  // zero for synthetic partners
	SyntheticID  string // set only for synthetic partners
	DisplayName  string
	Country      string
	Language     string
	RendezvousID string
}

// Real reports whether the partner is backed by a live user.
func (p *Partner) Real() bool {
	return p != nil && p.Kind == PartnerReal
}

// Result is what a resolution produces: the partner, the system message
// announcing the connection, and the rendezvous id the search ran under
// (the local side of the handshake).
type Result struct {
	Partner          *Partner
	SystemMessage    string
	SelfRendezvousID string
}
