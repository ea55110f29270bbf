package liquidation

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testFactorTable() *FactorTable {
	return &FactorTable{
		Brackets: []LeverageBracket{
			{
				MinLeverage: dec("1"),
				MaxLeverage: dec("10"),
				Tiers: []ValueTier{
					{Threshold: dec("50000"), Factor: dec("0.005")},
					{Threshold: dec("250000"), Factor: dec("0.01")},
				},
				DefaultFactor: dec("0.02"),
			},
			{
				MinLeverage:   dec("11"),
				MaxLeverage:   dec("25"),
				Tiers:         []ValueTier{{Threshold: dec("50000"), Factor: dec("0.015")}},
				DefaultFactor: dec("0.03"),
			},
		},
		DefaultFactor:     dec("0.05"),
		LeverageOneFactor: dec("0.003"),
	}
}

func TestResolvePicksFirstCoveringTier(t *testing.T) {
	table := testFactorTable()

	cases := []struct {
		name     string
		leverage string
		value    string
		want     string
	}{
		{"small position first tier", "5", "10000", "0.005"},
		{"value on threshold stays in tier", "5", "50000", "0.005"},
		{"value above threshold moves to next tier", "5", "50001", "0.01"},
		{"value beyond all tiers gets bracket default", "5", "300000", "0.02"},
		{"leverage on bracket upper bound", "10", "10000", "0.005"},
		{"leverage in second bracket", "20", "10000", "0.015"},
		{"leverage outside all brackets gets table default", "50", "10000", "0.05"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := table.Resolve(dec(tc.leverage), dec(tc.value))
			if !got.Equal(dec(tc.want)) {
				t.Errorf("Resolve(%s, %s) = %s, want %s", tc.leverage, tc.value, got, tc.want)
			}
		})
	}
}

func TestResolveEmptyTableFallsBack(t *testing.T) {
	table := &FactorTable{DefaultFactor: dec("0.04")}
	if got := table.Resolve(dec("3"), dec("1000")); !got.Equal(dec("0.04")) {
		t.Errorf("empty table must return the table default, got %s", got)
	}
}
