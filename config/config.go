// Package config loads the configuration of an evaluation run.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/qobserve"
	"github.com/fumin/qobserve/circuit"
	"github.com/fumin/qobserve/cluster"
	"github.com/fumin/qobserve/spin"
)

// Verify compares the result against an expected value.
type Verify struct {
	Want float64 `yaml:"want"`
	Tol  float64 `yaml:"tol"`
}

type Config struct {
	Target      string    `yaml:"target"`
	Kernel      string    `yaml:"kernel"`
	Params      []float64 `yaml:"params"`
	Hamiltonian string    `yaml:"hamiltonian"`
	// Shots is nil for exact evaluation.
	Shots *int   `yaml:"shots"`
	Seed  uint64 `yaml:"seed"`
	Mode  string `yaml:"mode"`
	// Workers runs that many ranks in this process.
	Workers int            `yaml:"workers"`
	Cluster cluster.Config `yaml:"cluster"`
	Verify  *Verify        `yaml:"verify"`
	// DB is the path of the run log, empty for none.
	DB string `yaml:"db"`
}

// Default returns the deuteron demo.
func Default() Config {
	return Config{
		Target:      "statevector",
		Kernel:      "x 0; ry $0 1; cx 1 0",
		Params:      []float64{0.59},
		Hamiltonian: "5.907 - 2.1433 X0 X1 - 2.1433 Y0 Y1 + .21829 Z0 - 6.125 Z1",
		Seed:        1,
		Mode:        string(qobserve.ModeAll),
		Workers:     1,
		Cluster:     cluster.Config{Size: 1},
		Verify:      &Verify{Want: -1.7487948611472093, Tol: 1e-6},
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if _, err := cfg.ParseKernel(); err != nil {
		return errors.Wrap(err, "kernel")
	}
	if _, err := cfg.ParseHamiltonian(); err != nil {
		return errors.Wrap(err, "hamiltonian")
	}
	if _, err := cfg.Options(); err != nil {
		return errors.Wrap(err, "")
	}
	if cfg.Workers < 1 {
		return errors.Errorf("workers %d", cfg.Workers)
	}
	if err := cfg.Cluster.Validate(); err != nil {
		return errors.Wrap(err, "cluster")
	}
	if cfg.Workers > 1 && cfg.Cluster.Size > 1 {
		return errors.Errorf("workers %d with cluster size %d", cfg.Workers, cfg.Cluster.Size)
	}
	if cfg.Verify != nil && cfg.Verify.Tol < 0 {
		return errors.Errorf("verify tol %v", cfg.Verify.Tol)
	}
	return nil
}

func (cfg Config) ParseKernel() (*circuit.Kernel, error) {
	k, err := circuit.Parse(cfg.Kernel)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return k, nil
}

func (cfg Config) ParseHamiltonian() (spin.Op, error) {
	h, err := spin.Parse(cfg.Hamiltonian)
	if err != nil {
		return spin.Op{}, errors.Wrap(err, "")
	}
	return h, nil
}

// Options returns the evaluation options described by cfg.
func (cfg Config) Options() (qobserve.Options, error) {
	mode, err := qobserve.ParseMode(cfg.Mode)
	if err != nil {
		return qobserve.Options{}, errors.Wrap(err, "")
	}
	opt := qobserve.NewOptions().Target(cfg.Target).Seed(cfg.Seed).Mode(mode)
	if cfg.Shots != nil {
		opt = opt.Shots(*cfg.Shots)
	}
	return opt, nil
}
