package catalog

// Default returns the catalog the product ships with. The YAML loader can
// replace it wholesale; code never edits a catalog in place.
func Default() *Catalog {
	c, err := New(defaultSystems(), defaultCountries())
	if err != nil {
		// The built-in tables are covered by tests; a failure here is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return c
}

func defaultSystems() []System {
	return []System{
		{
			ID:            "ARG_1_10",
			Kind:          KindNumeric,
			Min:           1,
			Max:           10,
			PassThreshold: 4,
		},
		{
			// German school scale: 1 is best, 6 is worst, 4 or better passes.
			ID:            "DEU_1_6_INVERTED",
			Kind:          KindNumeric,
			Min:           1,
			Max:           6,
			Inverted:      true,
			PassThreshold: 4,
		},
		{
			// Canonical South African percentage scale used as the pivot view.
			ID:            "ZA",
			Kind:          KindNumeric,
			Min:           0,
			Max:           100,
			PassThreshold: 50,
		},
		{
			ID:   "USA_GPA_0_4",
			Kind: KindGPA,
			Min:  0,
			Max:  4,
			Breakpoints: []Breakpoint{
				{Position: 0.93, Value: 4.0},
				{Position: 0.90, Value: 3.7},
				{Position: 0.87, Value: 3.3},
				{Position: 0.83, Value: 3.0},
				{Position: 0.80, Value: 2.7},
				{Position: 0.77, Value: 2.3},
				{Position: 0.73, Value: 2.0},
				{Position: 0.70, Value: 1.7},
				{Position: 0.67, Value: 1.3},
				{Position: 0.60, Value: 1.0},
				{Position: 0, Value: 0.0},
			},
			PassThreshold: 1.0,
		},
		{
			ID:        "USA_LETTER_A_F",
			Kind:      KindOrdinal,
			Labels:    []string{"A", "B", "C", "D", "F"},
			PassLabel: "D",
		},
		{
			ID:        "GBR_ASTAR_F",
			Kind:      KindOrdinal,
			Labels:    []string{"A*", "A", "B", "C", "D", "E", "F"},
			PassLabel: "E",
		},
		{
			ID:        "GBR_ALEVEL",
			Kind:      KindOrdinal,
			Labels:    []string{"A*", "A", "B", "C", "D", "E"},
			PassLabel: "E",
		},
		{
			// Reformed GCSE numbers, still an ordered label scale: 9 best.
			ID:        "GBR_GCSE",
			Kind:      KindOrdinal,
			Labels:    []string{"9", "8", "7", "6", "5", "4", "3", "2", "1"},
			PassLabel: "4",
		},
	}
}

func defaultCountries() map[string][]string {
	return map[string][]string{
		"ARG": {"ARG_1_10"},
		"DEU": {"DEU_1_6_INVERTED"},
		"USA": {"USA_GPA_0_4", "USA_LETTER_A_F"},
		"GBR": {"GBR_ASTAR_F", "GBR_ALEVEL", "GBR_GCSE"},
		"ZAF": {"ZA"},
	}
}
