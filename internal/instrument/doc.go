// Package instrument provides the capability/attribute framework shared by
// every driver in labrig-core.
//
// A programmable test instrument is presented as a uniform set of
// attributes (readable, optionally writable named values) and methods
// (imperative actions). The framework supplies the pieces every driver
// composes:
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                         Driver Core                           │
//	│                                                               │
//	│  ┌──────────────┐   ┌─────────────┐   ┌───────────────────┐   │
//	│  │   Registry   │──▶│    Cache    │   │    Collections    │   │
//	│  │(attribute.go)│   │ (cache.go)  │   │  (collection.go)  │   │
//	│  │              │   │             │   │                   │   │
//	│  │ • paths      │   │ • validity  │   │ • channels/traces │   │
//	│  │ • accessors  │   │ • locals    │   │ • name or index   │   │
//	│  │ • invalidation│  │ • staleness │   │ • current slot    │   │
//	│  └──────────────┘   └─────────────┘   └───────────────────┘   │
//	│         │                                                     │
//	│  ┌──────────────┐   ┌─────────────────────────────────────┐   │
//	│  │ Acquisition  │   │  operation.* / identity.* groups    │   │
//	│  │ state machine│   │  (core.go)                          │   │
//	│  └──────────────┘   └─────────────────────────────────────┘   │
//	└───────────────────────────────────────────────────────────────┘
//
// # Attribute registration
//
// Capability components register attributes once at driver construction.
// The registration table is static: accessors are ordinary closures,
// resolved through interface dispatch, never reflection.
//
//	reg.MustRegister(instrument.Descriptor{
//	    Path:       "channels[].voltage.range",
//	    Group:      "load.base",
//	    Collection: "channels",
//	    Doc:        "Set range given a maximum voltage.",
//	    Get:        d.getVoltageRange,
//	    Set:        d.setVoltageRange,
//	})
//	reg.Affects("frequency.center", "frequency.start", "frequency.stop")
//
// # Cache policy
//
// Hardware-backed entries start invalid and become valid on any successful
// round trip. Setting an attribute fires the invalidation edges declared
// for it, so dependent entries are re-fetched on their next read. Local
// attributes (no hardware backing) are seeded valid with a default and
// survive InvalidateAll.
//
// # Simulate mode
//
// With the transport's simulate flag raised, no command ever reaches
// hardware: getters fall back to documented defaults, setters only update
// local state. Drivers consult Core.Simulated before every wire touch.
//
// # Concurrency
//
// A driver instance is a single synchronous request/response endpoint.
// Nothing in this package synchronizes; callers (the rig) serialize access
// per instrument.
package instrument
