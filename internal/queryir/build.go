package queryir

// Col returns a Column reference.
func Col(table, name string) Column {
	return Column{Table: table, Name: name}
}

// Eq returns left = right.
func Eq(left, right Expr) Predicate {
	return Compare{Left: left, Op: OpEq, Right: right}
}

// InIDs returns left IN (ids), or False when ids is empty.
func InIDs(left Expr, ids []int64) Predicate {
	if len(ids) == 0 {
		return False{}
	}
	return In{Left: left, Set: IDs(append([]int64(nil), ids...))}
}

// NotInIDs returns left NOT IN (ids), or True when ids is empty.
func NotInIDs(left Expr, ids []int64) Predicate {
	if len(ids) == 0 {
		return True{}
	}
	return In{Left: left, Set: IDs(append([]int64(nil), ids...)), Negate: true}
}

// InSet returns left IN set.
func InSet(left Expr, set Set) Predicate {
	return In{Left: left, Set: set}
}

// AndOf conjoins preds, flattening nested Ands. True operands are dropped;
// any False operand makes the result False. A single remaining operand is
// returned as is, and no operands yield True.
func AndOf(preds ...Predicate) Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		switch v := p.(type) {
		case nil, True:
			continue
		case False:
			return False{}
		case And:
			inner := AndOf(v.Predicates...)
			switch iv := inner.(type) {
			case True:
				continue
			case False:
				return False{}
			case And:
				out = append(out, iv.Predicates...)
			default:
				out = append(out, inner)
			}
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return True{}
	case 1:
		return out[0]
	}
	return And{Predicates: out}
}

// OrOf disjoins preds, flattening nested Ors. False operands are dropped;
// any True operand makes the result True. A single remaining operand is
// returned as is, and no operands yield False.
func OrOf(preds ...Predicate) Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		switch v := p.(type) {
		case nil, False:
			continue
		case True:
			return True{}
		case Or:
			inner := OrOf(v.Predicates...)
			switch iv := inner.(type) {
			case False:
				continue
			case True:
				return True{}
			case Or:
				out = append(out, iv.Predicates...)
			default:
				out = append(out, inner)
			}
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return False{}
	case 1:
		return out[0]
	}
	return Or{Predicates: out}
}

// IsFalse reports whether p is the False constant.
func IsFalse(p Predicate) bool {
	_, ok := p.(False)
	return ok
}
