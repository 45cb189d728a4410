package router

import "github.com/anjanpoonacha/tvchart/model"

// parseMetadata reads a symbol_resolved payload's metadata object. Known
// fields are lifted onto model.SymbolMetadata; the full decoded map is
// also kept in Extra so callers can reach anything the distilled schema
// doesn't name.
func parseMetadata(raw any) model.SymbolMetadata {
	m, _ := raw.(map[string]any)
	return model.SymbolMetadata{
		Name:       str(m, "name"),
		FullName:   str(m, "full_name"),
		Ticker:     str(m, "ticker"),
		Exchange:   str(m, "exchange"),
		Type:       str(m, "type"),
		Timezone:   str(m, "timezone"),
		MinMov:     num(m, "minmov"),
		PriceScale: num(m, "pricescale"),
		Session:    str(m, "session"),
		Extra:      m,
	}
}

// parseSeriesUpdate reads one timescale_update/du `data[k]` entry for a
// series handle: the OHLCV rows under "s", and the turnaround id under
// "ns.d" (falling back to "lbs.d") per §4.6's tier-2 correlation.
func parseSeriesUpdate(raw any) (bars []model.Bar, turnaround string) {
	m, _ := raw.(map[string]any)
	if rows, ok := m["s"].([]any); ok {
		for _, item := range rows {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			v, ok := row["v"].([]any)
			if !ok || len(v) < 6 {
				continue
			}
			bars = append(bars, model.Bar{
				Time:   int64(toFloat(v[0])),
				Open:   toFloat(v[1]),
				High:   toFloat(v[2]),
				Low:    toFloat(v[3]),
				Close:  toFloat(v[4]),
				Volume: toFloat(v[5]),
			})
		}
	}
	turnaround = nested(m, "ns", "d")
	if turnaround == "" {
		turnaround = nested(m, "lbs", "d")
	}
	return bars, turnaround
}

// parseStudyUpdate reads one timescale_update/du `data[k]` entry for a
// study handle: rows under "st", each `[time, v1, v2, ...]`.
func parseStudyUpdate(raw any) []model.IndicatorBar {
	m, _ := raw.(map[string]any)
	rows, ok := m["st"].([]any)
	if !ok {
		return nil
	}
	out := make([]model.IndicatorBar, 0, len(rows))
	for _, item := range rows {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		v, ok := row["v"].([]any)
		if !ok || len(v) == 0 {
			continue
		}
		bar := model.IndicatorBar{Time: int64(toFloat(v[0]))}
		for _, val := range v[1:] {
			bar.Values = append(bar.Values, toFloat(val))
		}
		out = append(out, bar)
	}
	return out
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func num(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func nested(m map[string]any, outer, inner string) string {
	o, ok := m[outer].(map[string]any)
	if !ok {
		return ""
	}
	v, _ := o[inner].(string)
	return v
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
