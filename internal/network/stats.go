package network

import "sort"

// Stats aggregates the filtered view of a session's captured entries.
type Stats struct {
	Count        int     `json:"count"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	MedLatencyMS float64 `json:"median_latency_ms"`
	TotalBytes   int64   `json:"total_bytes"`
}

// Stats computes aggregates over the filtered view. A session without
// capture state yields zero stats: no data yet is a valid state, not a
// fault.
func (m *Monitor) Stats(sessionID string) Stats {
	entries := m.Entries(sessionID)

	var stats Stats
	stats.Count = len(entries)
	if stats.Count == 0 {
		return stats
	}

	latencies := make([]float64, 0, len(entries))
	var totalLatency float64
	for _, rec := range entries {
		if rec.Failed {
			stats.FailureCount++
		} else {
			stats.SuccessCount++
		}
		stats.TotalBytes += rec.Size

		ms := float64(rec.Duration().Microseconds()) / 1000.0
		latencies = append(latencies, ms)
		totalLatency += ms
	}

	stats.AvgLatencyMS = totalLatency / float64(len(latencies))

	sort.Float64s(latencies)
	mid := len(latencies) / 2
	if len(latencies)%2 == 1 {
		stats.MedLatencyMS = latencies[mid]
	} else {
		stats.MedLatencyMS = (latencies[mid-1] + latencies[mid]) / 2
	}

	return stats
}
