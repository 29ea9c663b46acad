package position

// RestrictionSet is an immutable collection of zones evaluated together.
// The zero value has no zones and accepts every position.
type RestrictionSet struct {
	zones []Zone
}

func NewRestrictionSet(zones ...Zone) RestrictionSet {
	return RestrictionSet{zones: append([]Zone(nil), zones...)}
}

func (rs RestrictionSet) Len() int {
	return len(rs.zones)
}

func (rs RestrictionSet) Zones() []Zone {
	return append([]Zone(nil), rs.zones...)
}

// IsInPosition reports whether a snapshot may be taken with the head at (x, y).
//
// When at least one required zone exists the point must be inside one of them.
// A forbidden zone containing the point always rejects it, even if a required
// zone contains it too. Every zone is checked.
func IsInPosition(rs RestrictionSet, x, y float64) bool {
	var (
		inForbidden     bool
		inRequired      bool
		hasRequiredZone bool
	)

	for _, z := range rs.zones {
		contains := z.Contains(x, y)
		switch z.Kind {
		case KindForbidden:
			if contains {
				inForbidden = true
			}
		case KindRequired:
			hasRequiredZone = true
			if contains {
				inRequired = true
			}
		}
	}

	return (!hasRequiredZone || inRequired) && !inForbidden
}
