package simulated

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/sources"
	"openprotect-lab/pkg/logger"
)

const (
	generatorSlug = "simulated"

	// DirectiveIssuer tags directives raised by the generator
	DirectiveIssuer = "simulator"
)

// Config holds per-tick probabilities for each kind of input
type Config struct {
	Seed            int64
	AlertChance     float64
	IntelChance     float64
	DirectiveChance float64
}

// DefaultConfig returns the stock cadence: an alert every tick, intel on
// roughly two ticks in five, a directive candidate on roughly one in seven
func DefaultConfig() Config {
	return Config{
		AlertChance:     1.0,
		IntelChance:     0.4,
		DirectiveChance: 0.15,
	}
}

// Generator produces random alerts, intel and directives from a fixed catalog.
// A given seed always yields the same sequence.
type Generator struct {
	*sources.BaseSource
	cfg    Config
	clock  func() time.Time
	logger *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customises a Generator
type Option func(*Generator)

// WithClock overrides the timestamp source
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) { g.clock = clock }
}

// NewGenerator creates a new simulated source. A zero seed picks one from the
// current time.
func NewGenerator(cfg Config, log *logger.Logger, opts ...Option) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Generator{
		BaseSource: sources.NewBaseSource(generatorSlug, "Simulated Endpoint Fleet"),
		cfg:        cfg,
		clock:      time.Now,
		logger:     log.WithComponent("simulated-source"),
		rng:        rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger.Debug().Int64("seed", seed).Msg("generator seeded")
	return g
}

// Next rolls the dice for each kind of input independently
func (g *Generator) Next(ctx context.Context) (*models.TickInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock().UTC()
	in := &models.TickInput{}

	if g.roll(g.cfg.AlertChance) {
		t := alertCatalog[g.rng.Intn(len(alertCatalog))]
		in.Alert = t.build(g.newID())
		in.Alert.Timestamp = now
	}

	if g.roll(g.cfg.IntelChance) {
		in.Intel = cloneIntel(intelCatalog[g.rng.Intn(len(intelCatalog))])
		in.Intel.ID = g.newID()
		in.Intel.Timestamp = now
	}

	if g.roll(g.cfg.DirectiveChance) {
		d := directiveCatalog[g.rng.Intn(len(directiveCatalog))]
		d.Issuer = DirectiveIssuer
		in.Directive = &d
	}

	return in, nil
}

func (g *Generator) roll(p float64) bool {
	return g.rng.Float64() < p
}

// newID draws a UUID from the seeded stream so ids are reproducible
func (g *Generator) newID() string {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
