// Package repr provides the row representation shared by every dataflow
// package: datums, rows, and the relation shapes that describe them.
//
// This package contains value types only. All other internal packages
// import repr; repr imports nothing internal.
//
// Key design constraints:
//   - NO float datums - numbers are int64 so ordering is total and exact
//   - Datum is a sealed interface; exhaustive switches are safe
//   - Datums compare with a total order (Compare), used by sorting and
//     consolidation alike
//   - All JSON tags use snake_case
package repr
