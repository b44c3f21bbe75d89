package domain

// ScopeFilter is a closed set of categorical dimensions used both as a
// document's scope tags and as a retrieval query's required filters.
// Dimensions are not free-form: adding one means touching this struct,
// the stores and the vector index payloads, which keeps filter
// correctness testable.
type ScopeFilter struct {
	// BusinessLines, e.g. "COLLECTIONS", "RETENTION".
	BusinessLines []string

	// Queues, e.g. "INBOUND-TIER1".
	Queues []string

	// Regions, e.g. "EMEA".
	Regions []string
}

// IsEmpty reports whether no dimension carries a value.
func (f ScopeFilter) IsEmpty() bool {
	return len(f.BusinessLines) == 0 && len(f.Queues) == 0 && len(f.Regions) == 0
}

// Matches reports whether a document scoped with f is eligible for a query
// filtered by q. For each dimension where the query names values, the
// document must either name at least one of them or leave the dimension
// empty (empty document scope means "applies everywhere"). An empty query
// dimension imposes no constraint.
func (f ScopeFilter) Matches(q ScopeFilter) bool {
	return dimensionMatches(f.BusinessLines, q.BusinessLines) &&
		dimensionMatches(f.Queues, q.Queues) &&
		dimensionMatches(f.Regions, q.Regions)
}

func dimensionMatches(docTags, queryTags []string) bool {
	if len(queryTags) == 0 || len(docTags) == 0 {
		return true
	}
	for _, want := range queryTags {
		for _, have := range docTags {
			if want == have {
				return true
			}
		}
	}
	return false
}
