package cardpool

// Sample returns the built-in demo collection: a dozen classic home computers
// with enough consistently numeric fields for every mechanic to run. Used
// when no collection source is configured and by the demo command.
func Sample() *StaticProvider {
	cards := []Card{
		{ID: "zx81", Title: "Sinclair ZX81", Fields: map[string]string{
			"year": "1981", "ram_kb": "1", "cpu_mhz": "3.25", "weight_g": "350", "units_sold_k": "1500",
		}},
		{ID: "c64", Title: "Commodore 64", Fields: map[string]string{
			"year": "1982", "ram_kb": "64", "cpu_mhz": "1.02", "weight_g": "1820", "units_sold_k": "12500",
		}},
		{ID: "spectrum", Title: "ZX Spectrum", Fields: map[string]string{
			"year": "1982", "ram_kb": "48", "cpu_mhz": "3.5", "weight_g": "552", "units_sold_k": "5000",
		}},
		{ID: "bbc-b", Title: "BBC Micro Model B", Fields: map[string]string{
			"year": "1981", "ram_kb": "32", "cpu_mhz": "2", "weight_g": "3700", "units_sold_k": "1500",
		}},
		{ID: "apple2", Title: "Apple II", Fields: map[string]string{
			"year": "1977", "ram_kb": "4", "cpu_mhz": "1.023", "weight_g": "5300", "units_sold_k": "6000",
		}},
		{ID: "atari800", Title: "Atari 800", Fields: map[string]string{
			"year": "1979", "ram_kb": "8", "cpu_mhz": "1.79", "weight_g": "4540", "units_sold_k": "4000",
		}},
		{ID: "amiga500", Title: "Amiga 500", Fields: map[string]string{
			"year": "1987", "ram_kb": "512", "cpu_mhz": "7.16", "weight_g": "3200", "units_sold_k": "4850",
		}},
		{ID: "atarist", Title: "Atari 520ST", Fields: map[string]string{
			"year": "1985", "ram_kb": "512", "cpu_mhz": "8", "weight_g": "4100", "units_sold_k": "2100",
		}},
		{ID: "msx", Title: "MSX (Sony HitBit)", Fields: map[string]string{
			"year": "1983", "ram_kb": "64", "cpu_mhz": "3.58", "weight_g": "2300", "units_sold_k": "5000",
		}},
		{ID: "cpc464", Title: "Amstrad CPC 464", Fields: map[string]string{
			"year": "1984", "ram_kb": "64", "cpu_mhz": "4", "weight_g": "2200", "units_sold_k": "2000",
		}},
		{ID: "vic20", Title: "Commodore VIC-20", Fields: map[string]string{
			"year": "1980", "ram_kb": "5", "cpu_mhz": "1.02", "weight_g": "1800", "units_sold_k": "2500",
		}},
		{ID: "ti99", Title: "TI-99/4A", Fields: map[string]string{
			"year": "1981", "ram_kb": "16", "cpu_mhz": "3", "weight_g": "2950", "units_sold_k": "2800",
		}},
	}

	return NewStaticProvider(cards, DetectOptions{
		LowerIsBetter: []string{"weight_g"},
		Labels: map[string]string{
			"year":         "Year",
			"ram_kb":       "RAM (KB)",
			"cpu_mhz":      "CPU (MHz)",
			"weight_g":     "Weight (g)",
			"units_sold_k": "Units Sold (k)",
		},
	})
}
