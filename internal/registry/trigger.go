package registry

import "github.com/ocx/sentinel/internal/blackboard"

// Evaluate reports whether t's condition is satisfied against the signals
// published so far. Leaf nodes consult snapshot directly; composite nodes
// recurse. An unrecognized Kind evaluates to false rather than erroring,
// since validate rejects unknown kinds at load time.
func (t Trigger) Evaluate(snapshot map[string]blackboard.Signal) bool {
	switch t.Kind {
	case TriggerAlways:
		return true
	case TriggerSignalExists:
		_, ok := snapshot[t.Key]
		return ok
	case TriggerSignalEquals:
		s, ok := snapshot[t.Key]
		if !ok {
			return false
		}
		switch {
		case t.BoolValue != nil:
			return s.Kind == blackboard.KindBool && s.Bool == *t.BoolValue
		case t.StrValue != nil:
			return s.Kind == blackboard.KindStr && s.Str == *t.StrValue
		case t.RealValue != nil:
			return s.Kind == blackboard.KindReal && s.Real == *t.RealValue
		default:
			return false
		}
	case TriggerSignalGreaterThan:
		s, ok := snapshot[t.Key]
		if !ok || t.RealValue == nil {
			return false
		}
		switch s.Kind {
		case blackboard.KindReal:
			return s.Real > *t.RealValue
		case blackboard.KindInt:
			return float64(s.Int) > *t.RealValue
		default:
			return false
		}
	case TriggerAnyOf:
		for _, child := range t.Of {
			if child.Evaluate(snapshot) {
				return true
			}
		}
		return false
	case TriggerAllOf:
		if len(t.Of) == 0 {
			return false
		}
		for _, child := range t.Of {
			if !child.Evaluate(snapshot) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
