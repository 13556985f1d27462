/*
Package metrics exposes the server's Prometheus collectors.

The collectors cover each service's hot path: resolved actions by name
and error kind, file tasks by kind and error kind, store size gauges
(files and bytes), process runs by outcome, mails sent and failed, and
per-listener request and throttle counters. Everything is registered at
init time; services record into the package-level collectors directly.

Handler returns the promhttp handler; the server mounts it on the
loopback metrics address (127.0.0.1:9090 by default), deliberately apart
from the public and private listeners so scraping never crosses the
authenticated action surface.

These are the operational counterpart to pkg/stats: the same figures the
statistics action reports as JSON, shaped for scraping instead.
*/
package metrics
