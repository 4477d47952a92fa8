package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FieldResolver supplies the text for a placeholder name.
type FieldResolver interface {
	ResolveField(ctx context.Context, name string) (string, error)
}

// ResolveError reports a placeholder that could not be filled.
type ResolveError struct {
	Field string
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("auto-type field {%s}: %v", e.Field, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Resolver replaces placeholders with literal text.
type Resolver struct {
	// Now is the clock for DT_* placeholders. Defaults to time.Now.
	Now func() time.Time
}

// Resolve is Resolver{}.Resolve.
func Resolve(ctx context.Context, ops []*Op, src FieldResolver) ([]*Op, error) {
	return Resolver{}.Resolve(ctx, ops, src)
}

// Resolve returns a copy of ops with every placeholder replaced by a text
// op carrying the same modifiers. The input tree is not modified. The
// first failure aborts resolution.
func (r Resolver) Resolve(ctx context.Context, ops []*Op, src FieldResolver) ([]*Op, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	// One timestamp per resolution so DT_* fields agree with each other.
	ts := now()
	return resolveOps(ctx, ops, src, ts)
}

func resolveOps(ctx context.Context, ops []*Op, src FieldResolver, ts time.Time) ([]*Op, error) {
	out := make([]*Op, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case KindPlaceholder:
			if err := ctx.Err(); err != nil {
				return nil, &ResolveError{Field: op.Value, Err: err}
			}
			value, err := resolveField(ctx, op.Value, src, ts)
			if err != nil {
				return nil, &ResolveError{Field: op.Value, Err: err}
			}
			out = append(out, &Op{Kind: KindText, Value: strings.Repeat(value, op.Repeat), Mods: op.Mods})
		case KindGroup:
			children, err := resolveOps(ctx, op.Ops, src, ts)
			if err != nil {
				return nil, err
			}
			g := *op
			g.Ops = children
			out = append(out, &g)
		default:
			c := *op
			out = append(out, &c)
		}
	}
	return out, nil
}

var dateFormats = map[string]string{
	"SIMPLE": "20060102150405",
	"YEAR":   "2006",
	"MONTH":  "01",
	"DAY":    "02",
	"HOUR":   "15",
	"MINUTE": "04",
	"SECOND": "05",
}

func resolveField(ctx context.Context, name string, src FieldResolver, ts time.Time) (string, error) {
	upper := strings.ToUpper(name)
	if rest, ok := strings.CutPrefix(upper, "DT_"); ok {
		t := ts.Local()
		if utc, ok := strings.CutPrefix(rest, "UTC_"); ok {
			rest, t = utc, ts.UTC()
		}
		if layout, ok := dateFormats[rest]; ok {
			return t.Format(layout), nil
		}
	}
	return src.ResolveField(ctx, name)
}
