package metrics

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"goal2goal/internal/model"
)

// WriteChart renders the metric series as an HTML line chart, one series
// per tag over the union of step values.
func WriteChart(path, title string, series map[string][]model.MetricSample) error {
	if len(series) == 0 {
		return fmt.Errorf("no metric series to chart")
	}

	tags := make([]string, 0, len(series))
	stepSet := map[int]bool{}
	for tag, samples := range series {
		tags = append(tags, tag)
		for _, s := range samples {
			stepSet[s.Step] = true
		}
	}
	sort.Strings(tags)

	steps := make([]int, 0, len(stepSet))
	for step := range stepSet {
		steps = append(steps, step)
	}
	sort.Ints(steps)

	labels := make([]string, len(steps))
	index := make(map[int]int, len(steps))
	for i, step := range steps {
		labels[i] = strconv.Itoa(step)
		index[step] = i
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
	)
	line = line.SetXAxis(labels)

	for _, tag := range tags {
		items := make([]opts.LineData, len(steps))
		for i := range items {
			items[i] = opts.LineData{Value: nil}
		}
		for _, s := range series[tag] {
			items[index[s.Step]] = opts.LineData{Value: s.Value}
		}
		line.AddSeries(tag, items)
	}

	page := components.NewPage()
	page.AddCharts(line)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
