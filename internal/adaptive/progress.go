package adaptive

import (
	"math"
	"math/rand"
)

// Virtual wallet bounds in copper. The valve keeps the simulated balance
// from compounding into fantasy territory.
const (
	walletBaseline = 1_000_000   // 100 gold
	walletCeiling  = 100_000_000 // 10,000 gold
)

// Sim profits only partially count: a simulated fill is uncertain, and even a
// successful one credits a discounted share.
const (
	liquidFillChance   = 0.30
	illiquidFillChance = 0.10
	liquidCutoff       = 80
	simProfitShare     = 0.60
)

// Progress tracks the bot's maturity level, experience, and virtual wallet.
type Progress struct {
	Level  int   `json:"level"`
	XP     int   `json:"xp"`
	RealXP int   `json:"real_xp"`
	SimXP  int   `json:"sim_xp"`
	Wallet int64 `json:"wallet"`
}

// DefaultProgress starts at level 1 with the baseline wallet.
func DefaultProgress() Progress {
	return Progress{Level: 1, Wallet: walletBaseline}
}

// AddRealXP credits experience from a reconciled real trade.
func (p *Progress) AddRealXP(xp int) {
	p.RealXP += xp
	p.XP += xp
	p.recomputeLevel()
}

// AddSimXP credits experience from a settled shadow trade.
func (p *Progress) AddSimXP(xp int) {
	p.SimXP += xp
	p.XP += xp
	p.recomputeLevel()
}

// CreditSimProfit rolls a liquidity-gated fill check and, on success, credits
// a discounted share of the shadow profit to the virtual wallet. Losses are
// always charged in full: pessimism is the point.
func (p *Progress) CreditSimProfit(profit int64, liquidityScore int, rng *rand.Rand) bool {
	if profit <= 0 {
		p.Wallet += profit
		if p.Wallet < 0 {
			p.Wallet = 0
		}
		return true
	}

	chance := illiquidFillChance
	if liquidityScore > liquidCutoff {
		chance = liquidFillChance
	}
	if rng.Float64() >= chance {
		return false
	}

	p.Wallet += int64(math.Floor(float64(profit) * simProfitShare))
	return true
}

// RealityValve resets the wallet to the baseline once it exceeds the
// ceiling. Returns true when the valve fired.
func (p *Progress) RealityValve() bool {
	if p.Wallet <= walletCeiling {
		return false
	}
	p.Wallet = walletBaseline
	return true
}

// recomputeLevel derives the level from total XP. Each level L costs 100*L
// XP on top of the previous one.
func (p *Progress) recomputeLevel() {
	level := 1
	remaining := p.XP
	for remaining >= 100*level {
		remaining -= 100 * level
		level++
	}
	p.Level = level
}

// NextLevelXP reports how much more XP the current level needs.
func (p *Progress) NextLevelXP() int {
	spent := 0
	for l := 1; l < p.Level; l++ {
		spent += 100 * l
	}
	return 100*p.Level - (p.XP - spent)
}
