/*
Package stats collects per-service counters and value series for the
statistics action.

Each service owns one Service collector, named after itself. Counters are
plain named int64s (RecordCounter adds, SetCounter overwrites for
gauge-like figures such as directory sizes); value series fold samples
into count/min/max/mean/total, which is how the file service tracks the
byte sizes flowing through store, update, retrieve and remove.

Snapshot renders the collector as a JSON-ready document:

	{"name": "fileService",
	 "counters": {...},
	 "values": {"fileSizeStore": {"count": ..., "min": ..., ...}}}

The dispatcher aggregates one snapshot per service into the statistics
reply. Collectors are mutex-guarded and safe to record into from any
goroutine. For the pull-based monitoring side of the same figures, see
pkg/metrics.
*/
package stats
