package engine

// ============================================================================
// CHART BUILDER: Produces ChartConfig from QuerySpec + Groups
// ============================================================================
// Rules build their groups from a ResultTable (see tableGroups); plans build
// them with GroupAndAggregate. Both end here.
// ============================================================================

// Default color palette for chart series.
var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// BuildChart produces a ChartConfig from a QuerySpec and aggregated groups.
func BuildChart(spec QuerySpec, groups []Group) *ChartConfig {
	if len(groups) == 0 {
		return nil
	}

	chartType := spec.Visualize
	if chartType == "" || chartType == "chart" {
		chartType = "bar"
	}

	config := &ChartConfig{
		ChartType:  chartType,
		Title:      spec.Title,
		ShowLegend: true,
		ShowGrid:   chartType != "pie",
	}

	if len(spec.GroupBy) > 0 {
		config.XAxis = LabelForDimension(spec.GroupBy[0])
	}
	config.YAxis = spec.Measure
	if config.YAxis == "" {
		config.YAxis = LabelForAggregation(spec.Aggregation)
	}

	if len(spec.GroupBy) >= 2 && hasSubGroups(groups) {
		config.Series = buildMultiSeries(groups)
	} else {
		config.Series = buildSingleSeries(groups, spec.Title)
	}

	config.Colors = assignColors(len(config.Series))
	return config
}

// ============================================================================
// SERIES BUILDERS
// ============================================================================

func buildSingleSeries(groups []Group, seriesName string) []ChartSeries {
	if seriesName == "" {
		seriesName = "Value"
	}

	points := make([]ChartPoint, 0, len(groups))
	for _, g := range groups {
		points = append(points, ChartPoint{
			Label: g.Label,
			Value: g.Value.Round(2).InexactFloat64(),
		})
	}

	return []ChartSeries{{
		Name: seriesName,
		Data: points,
	}}
}

// buildMultiSeries emits one series per sub-group key, in first-seen order.
// A primary group without that sub-group plots nothing for it.
func buildMultiSeries(groups []Group) []ChartSeries {
	var subKeys []string
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, sg := range g.SubGroups {
			if !seen[sg.Key] {
				seen[sg.Key] = true
				subKeys = append(subKeys, sg.Key)
			}
		}
	}

	seriesMap := make(map[string][]ChartPoint, len(subKeys))
	for _, g := range groups {
		for _, sg := range g.SubGroups {
			seriesMap[sg.Key] = append(seriesMap[sg.Key], ChartPoint{
				Label: g.Label,
				Value: sg.Value.Round(2).InexactFloat64(),
			})
		}
	}

	series := make([]ChartSeries, 0, len(subKeys))
	for i, key := range subKeys {
		series = append(series, ChartSeries{
			Name:  key,
			Data:  seriesMap[key],
			Color: defaultColors[i%len(defaultColors)],
		})
	}

	return series
}

func hasSubGroups(groups []Group) bool {
	for _, g := range groups {
		if len(g.SubGroups) > 0 {
			return true
		}
	}
	return false
}

func assignColors(count int) []string {
	colors := make([]string, count)
	for i := 0; i < count; i++ {
		colors[i] = defaultColors[i%len(defaultColors)]
	}
	return colors
}

// tableGroups turns a rule table into chart groups: one group per distinct
// primary key, with one sub-group per secondary key when secondary is set.
// Null cells are left out.
func tableGroups(t *ResultTable, primary, secondary, valueKey string) []Group {
	var groups []Group
	pos := make(map[string]int)
	for i := range t.Rows {
		v := t.Value(i, valueKey)
		if !v.Valid {
			continue
		}
		key := t.Key(i, primary)
		gi, ok := pos[key]
		if !ok {
			gi = len(groups)
			pos[key] = gi
			groups = append(groups, Group{Key: key, Label: key})
		}
		if secondary == "" {
			groups[gi].Value = groups[gi].Value.Add(v.Decimal)
			groups[gi].Count++
			continue
		}
		sub := t.Key(i, secondary)
		groups[gi].SubGroups = append(groups[gi].SubGroups, Group{Key: sub, Label: sub, Value: v.Decimal, Count: 1})
		groups[gi].Count++
	}
	return groups
}
