package formula

// =============================================================================
// EFFECTIVE RANGE - Validity interval of a formula version
// =============================================================================

// EffectiveRange is [From, To] with an optional open end.
type EffectiveRange struct {
	From Date
	To   *Date
}

func (r EffectiveRange) Contains(d Date) bool {
	if d.Before(r.From) {
		return false
	}
	return r.To == nil || d.BeforeOrEqual(*r.To)
}

// Overlaps reports whether two ranges share at least one day.
func (r EffectiveRange) Overlaps(o EffectiveRange) bool {
	if r.To != nil && r.To.Before(o.From) {
		return false
	}
	if o.To != nil && o.To.Before(r.From) {
		return false
	}
	return true
}

func (r EffectiveRange) String() string {
	if r.To == nil {
		return "[" + r.From.String() + ", open)"
	}
	return "[" + r.From.String() + ", " + r.To.String() + "]"
}
