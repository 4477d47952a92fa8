// Package obfuscate rewrites literal text so that the raw key stream never
// carries two characters of a secret next to each other.
//
// Each character is delivered as a short run of random decoys, which are
// then selected with shift+LEFT and overwritten by the real character. The
// field ends up holding exactly the original text.
package obfuscate

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"unicode/utf8"

	"autotyped/internal/sequence"
)

// ErrUnresolved means the tree still holds placeholders.
var ErrUnresolved = errors.New("obfuscate: tree has unresolved placeholders")

const decoyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Obfuscator is safe for concurrent use.
type Obfuscator struct {
	// MinDecoys and MaxDecoys bound the decoy run typed before each
	// character.
	MinDecoys, MaxDecoys int

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an obfuscator seeded from the system random source.
func New() (*Obfuscator, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("obfuscate: read random seed: %w", err)
	}
	return NewWithSeed(seed), nil
}

// NewWithSeed returns an obfuscator with a fixed seed.
func NewWithSeed(seed [32]byte) *Obfuscator {
	return &Obfuscator{MinDecoys: 1, MaxDecoys: 3, rng: rand.New(rand.NewChaCha8(seed))}
}

// Obfuscate returns a rewritten copy of ops. Text typed while a modifier
// is held gets no decoys, since they would turn into shortcuts; it is
// still split into one operation per character.
func (o *Obfuscator) Obfuscate(ops []*sequence.Op) ([]*sequence.Op, error) {
	if len(sequence.Placeholders(ops)) > 0 {
		return nil, ErrUnresolved
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rewrite(ops, false), nil
}

func (o *Obfuscator) rewrite(ops []*sequence.Op, held bool) []*sequence.Op {
	out := make([]*sequence.Op, 0, len(ops))
	for _, op := range ops {
		switch {
		case op.Kind == sequence.KindText && op.Value != "":
			if held || op.Mods != 0 {
				out = append(out, split(op))
			} else {
				out = append(out, o.scramble(op.Value))
			}
		case op.Kind == sequence.KindGroup:
			g := *op
			g.Ops = o.rewrite(op.Ops, held || op.Mods != 0)
			out = append(out, &g)
		default:
			out = append(out, op.Clone())
		}
	}
	return out
}

// split turns a text op into a group of single-character text ops under
// the same modifiers.
func split(op *sequence.Op) *sequence.Op {
	if utf8.RuneCountInString(op.Value) < 2 {
		return op.Clone()
	}
	g := sequence.Group(op.Mods)
	for _, r := range op.Value {
		g.Ops = append(g.Ops, sequence.Text(string(r)))
	}
	return g
}

func (o *Obfuscator) scramble(s string) *sequence.Op {
	lo, hi := o.MinDecoys, o.MaxDecoys
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}

	g := sequence.Group(0)
	for _, r := range s {
		n := lo + o.rng.IntN(hi-lo+1)
		for i := 0; i < n; i++ {
			g.Ops = append(g.Ops, sequence.Text(string(decoyAlphabet[o.rng.IntN(len(decoyAlphabet))])))
		}
		sel := sequence.Key(sequence.KeyLeft)
		sel.Repeat = n
		sel.Mods = sequence.Shift
		g.Ops = append(g.Ops, sel, sequence.Text(string(r)))
	}
	return g
}
