// Package harness runs conformance scenarios against the reference engine.
//
// A scenario compiles a catalog, feeds updates and watermarks into its
// sources, and checks what peeks and tails observe.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	catalog: catalogs/orders     # directory of CUE files, or:
//	cue: |                       # an inline CUE catalog
//	  source: orders: {...}
//	steps:
//	  - feed: orders
//	    updates:
//	      - {row: [1, 50], time: 1}
//	      - {row: [1, 50], time: 2, diff: -1}
//	    watermark: 3
//	  - parallel:
//	      - {feed: orders, watermark: 4}
//	      - {feed: customers, watermark: 4}
//	  - peek: big_orders
//	    when: "2"
//	    order_by: [{column: 0}]
//	    expect:
//	      rows: [[1, 50]]
//	      timestamp: 2
//	  - tail: big_orders_tail
//	    from: big_orders
//	  - recv: big_orders_tail
//	    expect:
//	      updates: [{row: [1, 50], time: 1}]
//	assertions:
//	  - {type: rows, view: big_orders, at: 1, rows: [[1, 50]]}
//	  - {type: watermark, source: orders, value: 4}
//
// Every step sets exactly one of feed, parallel, peek, tail and recv. A
// step without expect must not fail; expect.error names the code a step
// must fail with.
//
// # Assertion Types
//
//   - rows: the view's contents at a timestamp, compared as a multiset
//   - row_count: the number of rows in the view at a timestamp
//   - watermark: a source's current watermark
//   - frontier: the elements of a view's frontier
//   - rejected: the number of inputs the engine rejected
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory SQLite store and a sequence clock for
// catalog persistence. Feed steps wait for the engine to apply their
// inputs, so traces are identical across runs and can be compared with
// golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/orders.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
