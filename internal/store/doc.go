// Package store provides SQLite-backed storage for relationship edges.
//
// One table holds every edge: (ID, from, to, type, order_from, order_to).
// order_from is the edge's position among the edges sharing its from and
// type; order_to is the same for to.
//
// # Ordering
//
// Every read includes an explicit ORDER BY with ID as the final tie-break,
// so results are identical across runs.
//
// # Failures
//
// Point operations return (bool, error). The bool answers the question
// asked (did the edge exist, was it inserted, was anything removed); the
// error is only set for storage failures.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
