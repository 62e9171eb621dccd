package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Analytical rollups recompute cheaply but are hit often by dashboards
	TTLVolatility  = time.Hour // 1 hour - volatility metrics per ticker
	TTLCorrelation = time.Hour // 1 hour - correlation matrices per ticker set
	TTLSectors     = time.Hour // 1 hour - sector performance rollup

	// Graph queries hit an external store, cache longer
	TTLEntityGraph = 6 * time.Hour // 6 hours - legal entity subgraphs
)
