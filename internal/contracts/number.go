package contracts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/agencyhub-backend/pkg/redis"
)

// NumberGenerator hands out human-readable contract numbers.
type NumberGenerator interface {
	// Next takes the next value of the yearly counter.
	Next(ctx context.Context, at time.Time) (string, error)
	// Resync lifts the counter past the highest number already stored and
	// returns the first free one. Callers use it after a number collision.
	Resync(ctx context.Context, at time.Time) (string, error)
}

type numberIndex interface {
	HighestNumber(ctx context.Context, prefix string) (string, error)
}

type sequenceNumberGenerator struct {
	store  redis.SequenceStore
	index  numberIndex
	prefix string
}

// NewNumberGenerator numbers contracts <prefix>-<yyyy>-<seq:06d> from a
// per-year redis counter. The stored numbers in index are the source of truth
// whenever the counter is unreachable or behind.
func NewNumberGenerator(store redis.SequenceStore, index numberIndex, prefix string) (NumberGenerator, error) {
	if store == nil {
		return nil, fmt.Errorf("sequence store required")
	}
	if index == nil {
		return nil, fmt.Errorf("contract number index required")
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, fmt.Errorf("contract number prefix required")
	}
	return &sequenceNumberGenerator{store: store, index: index, prefix: prefix}, nil
}

func (g *sequenceNumberGenerator) Next(ctx context.Context, at time.Time) (string, error) {
	year := at.UTC().Year()
	seq, err := g.store.Incr(ctx, g.counterKey(year))
	if err != nil {
		return g.afterStored(ctx, year, fmt.Errorf("increment contract sequence: %w", err))
	}
	return FormatNumber(g.prefix, year, seq), nil
}

func (g *sequenceNumberGenerator) Resync(ctx context.Context, at time.Time) (string, error) {
	year := at.UTC().Year()
	highest, err := g.highestStored(ctx, year)
	if err != nil {
		return "", err
	}

	key := g.counterKey(year)
	seq, err := g.store.Incr(ctx, key)
	if err == nil && seq <= highest {
		seq, err = g.store.IncrBy(ctx, key, highest-seq+1)
	}
	if err != nil {
		return FormatNumber(g.prefix, year, highest+1), nil
	}
	return FormatNumber(g.prefix, year, seq), nil
}

// afterStored numbers from the database alone; concurrent callers may collide
// and are expected to Resync.
func (g *sequenceNumberGenerator) afterStored(ctx context.Context, year int, cause error) (string, error) {
	highest, err := g.highestStored(ctx, year)
	if err != nil {
		return "", fmt.Errorf("%w; %w", cause, err)
	}
	return FormatNumber(g.prefix, year, highest+1), nil
}

func (g *sequenceNumberGenerator) highestStored(ctx context.Context, year int) (int64, error) {
	yearPrefix := fmt.Sprintf("%s-%04d-", g.prefix, year)
	number, err := g.index.HighestNumber(ctx, yearPrefix)
	if err != nil {
		return 0, fmt.Errorf("read highest contract number: %w", err)
	}
	if number == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(number, yearPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse contract number %q: %w", number, err)
	}
	return seq, nil
}

func (g *sequenceNumberGenerator) counterKey(year int) string {
	return g.store.CounterKey(fmt.Sprintf("contracts:%d", year))
}

// FormatNumber renders a contract number, e.g. CTR-2025-000042.
func FormatNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}
