// Package fathom is a runtime for acquiring, buffering and persisting
// time-stamped channel values across heterogeneous connectors.
//
// A channel is a named, typed slot holding the latest value, its timestamp
// and a validity state. Connectors are the external endpoints (databases,
// files, devices) that channel values are read from and written to; a
// channel declares at most one live connector and at most one logger
// connector in its configuration. The data.Manager fans dispatch rounds
// out over a worker pool, isolating per-connector failures: a connector
// that fails to read flags only its own channels as erroneous.
//
// # Quick Start
//
// Declare connectors and channels in a YAML configuration file:
//
//	connectors:
//	  db1:
//	    type: postgres
//	    host: localhost
//	    database: metering
//	channels:
//	  power:
//	    type: float
//	    connector: db1
//
// then build and run a manager:
//
//	m := data.NewManager()
//	sqldb.Register(m.Connectors())
//	cfg, _ := config.Load("fathom.conf")
//	m.Configure(cfg)
//	m.Activate(ctx)
//	defer m.Deactivate(ctx)
//	m.ReadAll(ctx)
//	m.Log(ctx)
//
// The cmd/fathom CLI wraps exactly this sequence behind a signal-driven
// interval loop.
//
// # Package layout
//
//   - pkg/frame: immutable-timestamp series and frames exchanged with drivers
//   - pkg/channel: channels, bindings, value conversion and state
//   - pkg/registry: generic type registry and configured-instance contexts
//   - pkg/connector: the guarded Driver lifecycle wrapper and backends
//   - pkg/component: activatable application components
//   - pkg/data: channel context, update registrations and the dispatch manager
package fathom
