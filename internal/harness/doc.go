// Package harness runs relationship scenarios end to end.
//
// A scenario registers relationships, connects objects, then runs a list
// of steps against a relationships.Service backed by a fresh in-memory
// SQLite store. Each step's outcome is recorded in a trace that can be
// checked against the step's expect block and snapshotted to a golden
// file.
//
// # Scenario Format
//
//	name: posts_to_pages
//	description: "Connect a post to a page, then delete the post"
//	relationships:
//	  - id: posts_to_pages
//	    from: post
//	    to: page
//	setup:
//	  - {id: posts_to_pages, from: 10, to: 20}
//	steps:
//	  - op: connected
//	    spec: {id: posts_to_pages, from: 10}
//	    expect: {ids: [20]}
//	  - op: delete_object
//	    object: 10
//	    object_type: post
//	    expect: {count: 1}
//	assertions:
//	  - type: edge_count
//	    object: 10
//	    count: 0
//
// Relationships may also be read from a YAML or CUE definitions file
// named by relationships_file, relative to the scenario.
//
// # Operations
//
//   - connect, disconnect, has: edge operations on the step's edge
//   - connected: ids connected as spec describes, in order
//   - each_connected: ids connected to every anchor of spec
//   - clauses: the host statement spec restricts, for host post, term or user
//   - delete_object: cascade delete of object of object_type
//   - replace: set the ordered ids connected to object on side
//
// # Assertion Types
//
//   - edge_exists: the edge is stored
//   - edge_missing: the edge is not stored
//   - edge_count: number of stored edges, optionally of one relationship
//     and touching one object
//
// Compound specs use quoted numeric keys ("0", "1") so they decode as
// strings.
package harness
