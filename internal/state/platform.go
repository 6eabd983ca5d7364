package state

import (
	"github.com/google/uuid"
)

// Platform holds global settlement parameters. The admin identity is
// threaded in from configuration at startup, never read from ambient
// state, so tests can substitute arbitrary admins.
type Platform struct {
	Admin         uuid.UUID
	Treasury      uuid.UUID
	DisputeBond   int64
	DefaultFeeBps int32
	Paused        bool
	MarketCount   int64
	Version       int64
}

func NewPlatform(admin, treasury uuid.UUID, disputeBond int64, defaultFeeBps int32) *Platform {
	return &Platform{
		Admin:         admin,
		Treasury:      treasury,
		DisputeBond:   disputeBond,
		DefaultFeeBps: defaultFeeBps,
	}
}

// IsAdmin checks the caller against the configured admin identity.
func (p *Platform) IsAdmin(caller uuid.UUID) bool {
	return caller == p.Admin
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Platform) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)

	buf = append(buf, p.Admin[:]...)
	buf = append(buf, p.Treasury[:]...)
	buf = appendInt64LE(buf, p.DisputeBond)
	buf = append(buf,
		byte(p.DefaultFeeBps),
		byte(p.DefaultFeeBps>>8),
		byte(p.DefaultFeeBps>>16),
		byte(p.DefaultFeeBps>>24),
	)
	if p.Paused {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendInt64LE(buf, p.MarketCount)

	return buf
}
