package pools

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrPoolNotFound = errors.New("pool not found")

// Pool is the static, CMS-side description of a staking pool.
type Pool struct {
	ID              string          `yaml:"id" json:"poolId"`
	Name            string          `yaml:"name" json:"name"`
	StakeSymbol     string          `yaml:"stakeSymbol" json:"stakeSymbol"`
	RewardSymbol    string          `yaml:"rewardSymbol" json:"rewardSymbol"`
	Curve           calc.BoostCurve `yaml:"boostCurve" json:"boostCurve"`
	Decimals        int             `yaml:"decimals" json:"decimals"`
	RewardDecimals  int             `yaml:"rewardDecimals" json:"rewardDecimals"`
	UnlockWindowSec int64           `yaml:"unlockWindowSec" json:"unlockWindowSec"`
	MinPeriodDays   int64           `yaml:"minPeriodDays" json:"minPeriodDays"`
	MaxPeriodDays   int64           `yaml:"maxPeriodDays" json:"maxPeriodDays"`
	// YearlyRewards is the raw fallback used when the backend omits it.
	YearlyRewards string `yaml:"yearlyRewards" json:"yearlyRewards,omitempty"`
}

// FallbackYearlyRewards parses YearlyRewards; false when unset or invalid.
func (p Pool) FallbackYearlyRewards() (decimal.Decimal, bool) {
	d, ok := calc.ParseAmount(p.YearlyRewards)
	if !ok || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

type catalogFile struct {
	Pools []Pool `yaml:"pools"`
}

// Catalog is the immutable set of configured pools.
type Catalog struct {
	pools []Pool
	byID  map[string]Pool
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pool catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse pool catalog %s: %w", path, err)
	}
	return c, nil
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return NewCatalog(f.Pools)
}

// NewCatalog validates pools and indexes them by id.
func NewCatalog(pools []Pool) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Pool, len(pools))}
	for i, p := range pools {
		p.ID = strings.TrimSpace(p.ID)
		if err := validatePool(p); err != nil {
			return nil, fmt.Errorf("pool #%d: %w", i, err)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("pool #%d: duplicate id %q", i, p.ID)
		}
		c.byID[p.ID] = p
		c.pools = append(c.pools, p)
	}
	sort.SliceStable(c.pools, func(i, j int) bool { return c.pools[i].ID < c.pools[j].ID })
	return c, nil
}

func validatePool(p Pool) error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if _, err := (calc.AutoCurve{}).Evaluate(decimal.Zero, p.Curve); err != nil {
		return fmt.Errorf("pool %s: %w", p.ID, err)
	}
	if p.Decimals < 0 || p.Decimals > calc.MaxDecimals {
		return fmt.Errorf("pool %s: decimals %d out of range", p.ID, p.Decimals)
	}
	if p.RewardDecimals < 0 || p.RewardDecimals > calc.MaxDecimals {
		return fmt.Errorf("pool %s: rewardDecimals %d out of range", p.ID, p.RewardDecimals)
	}
	if p.UnlockWindowSec < 0 {
		return fmt.Errorf("pool %s: unlockWindowSec must not be negative", p.ID)
	}
	if p.MaxPeriodDays > 0 && p.MinPeriodDays > p.MaxPeriodDays {
		return fmt.Errorf("pool %s: minPeriodDays above maxPeriodDays", p.ID)
	}
	if p.YearlyRewards != "" {
		if _, ok := p.FallbackYearlyRewards(); !ok {
			return fmt.Errorf("pool %s: invalid yearlyRewards %q", p.ID, p.YearlyRewards)
		}
	}
	return nil
}

func (c *Catalog) Get(id string) (Pool, error) {
	p, ok := c.byID[id]
	if !ok {
		return Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return p, nil
}

// All returns the pools ordered by id.
func (c *Catalog) All() []Pool {
	out := make([]Pool, len(c.pools))
	copy(out, c.pools)
	return out
}

func (c *Catalog) Len() int {
	return len(c.pools)
}
