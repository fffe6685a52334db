package metrics

import "sort"

// StatusBucket represents the response count for an endpoint/code pair.
type StatusBucket struct {
	Endpoint string
	Code     string
	Count    int
}

// FlattenStatusBuckets converts a nested endpoint->status map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by endpoint/code for stability.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for endpoint, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Endpoint: endpoint, Code: code, Count: count})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Endpoint == rows[j].Endpoint {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Endpoint < rows[j].Endpoint
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
