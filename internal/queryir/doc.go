// Package queryir provides the intermediate representation emitted by the
// relationship clause builder.
//
// The clause builder never writes SQL text. It produces Fragments: the
// joins, where predicate, selected fields, GROUP BY and ORDER BY terms a
// host query must splice in to answer "which objects are connected to X".
// Fragments are serialized to a concrete dialect only at the host adapter
// boundary (see internal/querysql).
//
//	[ir.Query] → [clause.Builder] → [queryir.Fragments] → [querysql] → host query
//
// # Sealed Interfaces
//
// Expr, Predicate and Set are sealed with marker methods. Only types in
// this package implement them, so serializers can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Compare:
//	case In:
//	case And, Or:
//	case True, False:
//	}
//
// # Empty Sets
//
// An In predicate over an empty IDs set is never emitted. The constructors
// InIDs and NotInIDs collapse it to False and True respectively, and AndOf
// and OrOf fold those constants away. A clause whose anchor set is empty
// therefore reduces to False, which serializes as an always-false
// comparison rather than an empty IN list.
//
// Validate reports structural problems (nil operands, empty IN lists,
// joins without a condition) before serialization.
package queryir
