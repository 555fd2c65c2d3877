// Package clause builds the query fragments that restrict a host query to
// the objects connected through one or more relationships.
//
// # Clauses
//
// For a canonical clause anchored on side S (the target side T is
// S.Opposite()), the edge table is joined as mbr with:
//
//	mbr.T = host AND mbr.type = id AND mbr.S IN (items)
//
// A reciprocal clause matches the anchor against either column:
//
//	mbr.type = id AND ((mbr.from = host AND mbr.to IN (items))
//	               OR (mbr.to = host AND mbr.from IN (items)))
//
// and selects an effective order that picks order_from when the host sits
// in the to column and order_to when it sits in the from column.
//
// Every build selects the anchor id that matched as mb_origin, so callers
// can Distribute the rows back onto their anchors.
//
// # Siblings
//
// A sibling clause returns the objects that share a counterpart with the
// anchors, excluding the anchors themselves. The counterparts are
// collected by a sub-select so the two hops run as one query.
//
// # Compound Queries
//
// OR clauses are joined in place: their predicates are disjoined inside
// one join of the edge table. AND clauses cannot share one edge row, so
// only the lead clause is joined; every other clause is pre-resolved to
// an id list through the Resolver and the lists are intersected into a
// single host IN restriction.
//
// # Empty Anchors
//
// A clause with no anchor ids reduces to False. The builder then also sets
// the WHERE to False, so the host query returns no rows regardless of
// how the join is spliced.
package clause
