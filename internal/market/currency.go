package market

import "fmt"

// Coins splits a copper amount into gold/silver/copper denominations.
func Coins(copper int64) (gold, silver, rest int64) {
	neg := copper < 0
	if neg {
		copper = -copper
	}
	gold = copper / 10000
	silver = (copper % 10000) / 100
	rest = copper % 100
	if neg {
		gold, silver, rest = -gold, -silver, -rest
	}
	return
}

// FormatCoins renders a copper amount as a human-readable coin string,
// e.g. 123456 -> "12g 34s 56c".
func FormatCoins(copper int64) string {
	gold, silver, rest := Coins(copper)
	if gold != 0 {
		return fmt.Sprintf("%dg %ds %dc", gold, abs(silver), abs(rest))
	}
	if silver != 0 {
		return fmt.Sprintf("%ds %dc", silver, abs(rest))
	}
	return fmt.Sprintf("%dc", rest)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
