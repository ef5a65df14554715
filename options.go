package qobserve

import (
	"github.com/pkg/errors"

	"github.com/fumin/qobserve/sim"
)

// Mode selects which ranks receive the combined expectation value.
type Mode string

const (
	// ModeAll delivers the combined value to every rank.
	ModeAll Mode = "all"
	// ModeRoot delivers the combined value to rank 0 only.
	ModeRoot Mode = "root"
)

// ParseMode parses "all" or "root".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAll, ModeRoot:
		return m, nil
	}
	return "", errors.Errorf("unknown mode %q", s)
}

// Options are options for evaluating an expectation value.
type Options struct {
	target   string
	backend  sim.Backend
	shots    int
	hasShots bool
	seed     uint64
	mode     Mode
}

// NewOptions returns the default options: exact evaluation on the statevector target.
func NewOptions() Options {
	opt := Options{}
	opt.target = "statevector"
	opt.seed = 1
	opt.mode = ModeAll
	return opt
}

// Target sets the simulation target by name.
func (opt Options) Target(target string) Options {
	opt.target = target
	return opt
}

// Backend sets the simulation backend, taking precedence over Target.
func (opt Options) Backend(b sim.Backend) Options {
	opt.backend = b
	return opt
}

// Shots estimates every term from n measurements instead of computing it exactly.
func (opt Options) Shots(n int) Options {
	opt.shots = n
	opt.hasShots = true
	return opt
}

// Seed sets the seed of the measurement sampler.
func (opt Options) Seed(seed uint64) Options {
	opt.seed = seed
	return opt
}

// Mode sets which ranks receive the combined value.
func (opt Options) Mode(m Mode) Options {
	opt.mode = m
	return opt
}

func (opt Options) lookup() (sim.Backend, error) {
	if opt.backend != nil {
		return opt.backend, nil
	}
	b, err := sim.Lookup(opt.target)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return b, nil
}
