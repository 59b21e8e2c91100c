// Package analytics derives statistics from engine snapshots. Every function
// is pure: no I/O and no mutation of its inputs.
package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/tidwall/gjson"

	"n8n-mcp/backend/pkg/models"
)

const (
	// NoData is reported by PeakHour for an empty list.
	NoData = "No data"
	// NoPattern is reported by PeakHour when no record has a start time.
	NoPattern = "No pattern"
)

// Succeeded reports whether an execution completed normally. The engine
// stamps stoppedAt on every terminal run, so finished is the success signal;
// a stoppedAt without finished is a failure.
func Succeeded(e *models.Execution) bool {
	if e == nil || !e.Finished {
		return false
	}
	switch e.Status {
	case "error", "crashed", "canceled":
		return false
	}
	return true
}

// Failed reports whether an execution stopped without finishing.
func Failed(e *models.Execution) bool {
	return e != nil && e.StoppedAt != nil && !Succeeded(e)
}

// SuccessRate is the rounded percentage of succeeded executions; 0 for an
// empty list.
func SuccessRate(execs []*models.Execution) int {
	if len(execs) == 0 {
		return 0
	}
	ok := 0
	for _, e := range execs {
		if Succeeded(e) {
			ok++
		}
	}
	return int(math.Round(float64(ok) / float64(len(execs)) * 100))
}

// AverageDuration is the mean stoppedAt-startedAt over executions with both
// timestamps, formatted in whole milliseconds ("0ms" when none qualify).
func AverageDuration(execs []*models.Execution) string {
	var total float64
	n := 0
	for _, e := range execs {
		if e == nil {
			continue
		}
		if d, ok := e.Duration(); ok {
			total += float64(d) / 1e6
			n++
		}
	}
	if n == 0 {
		return "0ms"
	}
	return fmt.Sprintf("%dms", int64(math.Round(total/float64(n))))
}

// PeakHour buckets start times by UTC hour of day and reports the busiest
// bucket as "H:00 - H+1:00". Ties go to the earliest hour.
func PeakHour(execs []*models.Execution) string {
	if len(execs) == 0 {
		return NoData
	}
	var counts [24]int
	seen := false
	for _, e := range execs {
		if e == nil || e.StartedAt == nil {
			continue
		}
		counts[e.StartedAt.UTC().Hour()]++
		seen = true
	}
	if !seen {
		return NoPattern
	}
	peak := 0
	for h := 1; h < 24; h++ {
		if counts[h] > counts[peak] {
			peak = h
		}
	}
	return fmt.Sprintf("%d:00 - %d:00", peak, peak+1)
}

// ErrorPattern counts failures by the last node that ran.
type ErrorPattern struct {
	Node       string `json:"node"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// ErrorPatterns returns the five nodes most often last-executed in failed
// runs, most frequent first.
func ErrorPatterns(execs []*models.Execution) []ErrorPattern {
	counts := map[string]int{}
	failed := 0
	for _, e := range execs {
		if !Failed(e) {
			continue
		}
		failed++
		counts[lastNodeExecuted(e)]++
	}

	patterns := make([]ErrorPattern, 0, len(counts))
	for node, count := range counts {
		patterns = append(patterns, ErrorPattern{
			Node:       node,
			Count:      count,
			Percentage: int(math.Round(float64(count) / float64(failed) * 100)),
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Node < patterns[j].Node
	})
	if len(patterns) > 5 {
		patterns = patterns[:5]
	}
	return patterns
}

// LastFailedNode returns the node that ran last in the most recent failed
// execution of the list, or "".
func LastFailedNode(execs []*models.Execution) string {
	var latest *models.Execution
	for _, e := range execs {
		if !Failed(e) {
			continue
		}
		if latest == nil || e.StoppedAt.After(*latest.StoppedAt) {
			latest = e
		}
	}
	if latest == nil {
		return ""
	}
	return lastNodeExecuted(latest)
}

func lastNodeExecuted(e *models.Execution) string {
	if len(e.Data) > 0 {
		for _, path := range []string{"resultData.lastNodeExecuted", "lastNodeExecuted"} {
			if v := gjson.GetBytes(e.Data, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	return "Unknown"
}

// DataPattern summarises when and how well a workflow runs.
type DataPattern struct {
	TimeOfDay       string `json:"timeOfDay"`
	SuccessTrends   int    `json:"successTrends"`
	AverageDataSize string `json:"averageDataSize"`
}

// DataPatterns derives the timing and payload profile of executions.
func DataPatterns(execs []*models.Execution) DataPattern {
	return DataPattern{
		TimeOfDay:       PeakHour(execs),
		SuccessTrends:   SuccessRate(execs),
		AverageDataSize: averageDataSize(execs),
	}
}

func averageDataSize(execs []*models.Execution) string {
	total, n := 0, 0
	for _, e := range execs {
		if e == nil || len(e.Data) == 0 {
			continue
		}
		total += len(e.Data)
		n++
	}
	if n == 0 {
		return "Analysis pending"
	}
	return fmt.Sprintf("%dB", total/n)
}
