// Package ir provides the canonical types shared by every mbrel package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Direction is a two-valued enum; flip it with Opposite, never by string
//   - Object ids are int64 and never negative once normalized
//   - All JSON and YAML tags use snake_case
package ir
