// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for proctree routers and
// executors: counter telemetry bridged to hashicorp/go-metrics, plus
// registrable probes exporting live state snapshots.
package control
