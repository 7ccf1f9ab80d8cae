package txid

import (
	"crypto"
	_ "crypto/sha256" // registers SHA-256 with crypto.Hash
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// HashPrefixLength is the number of hex characters derived from the actor hash.
	HashPrefixLength = 16
	// RandomSuffixLength is the number of hex characters of the random component.
	RandomSuffixLength = 32

	hashBytes = HashPrefixLength / 2
)

// ErrHashUnavailable indicates SHA-256 is not linked into the binary. It is a
// configuration error and is never retried.
var ErrHashUnavailable = errors.New("txid: sha256 unavailable")

// Generator builds transaction identifiers of the form
// hash(actor) ‖ epoch millis ‖ random 128 bits.
type Generator struct {
	now    func() time.Time
	random func() [16]byte
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRandom overrides the source of the 128-bit random component.
func WithRandom(random func() [16]byte) Option {
	return func(g *Generator) { g.random = random }
}

// New returns a Generator, or ErrHashUnavailable when SHA-256 cannot be used.
func New(opts ...Option) (*Generator, error) {
	if !crypto.SHA256.Available() {
		return nil, ErrHashUnavailable
	}
	g := &Generator{
		now: time.Now,
		random: func() [16]byte {
			return uuid.New()
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// MustNew is like New but panics when the hash primitive is missing.
func MustNew(opts ...Option) *Generator {
	g, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return g
}

// Generate returns a new identifier for the actor. The actor is lower-cased
// before hashing so "Alice" and "alice" share a prefix.
func (g *Generator) Generate(actorID string) string {
	h := crypto.SHA256.New()
	h.Write([]byte(strings.ToLower(actorID)))
	sum := h.Sum(nil)

	random := g.random()

	var b strings.Builder
	b.Grow(HashPrefixLength + 13 + RandomSuffixLength)
	b.WriteString(hex.EncodeToString(sum[:hashBytes]))
	b.WriteString(strconv.FormatInt(g.now().UnixMilli(), 10))
	b.WriteString(hex.EncodeToString(random[:]))
	return b.String()
}

// ActorPrefix returns the hash prefix Generate would emit for actorID. Useful
// for grouping identifiers by actor without storing the raw identifier.
func ActorPrefix(actorID string) string {
	h := crypto.SHA256.New()
	h.Write([]byte(strings.ToLower(actorID)))
	return hex.EncodeToString(h.Sum(nil)[:hashBytes])
}
