package crashlog

// Predicate is a small composable matcher over CrashLog fields, grounded
// on original_source/FBControlCore/Management/FBiOSTargetPredicates.h's
// composable predicate contract (supplemented into scope: not excluded by
// any Non-goal, and needed by nextCrashLogForPredicate/crashes/pruneCrashes
// in spec §4.6).
type Predicate func(*CrashLog) bool

// ProcessNameIs matches crash logs for a specific process name.
func ProcessNameIs(name string) Predicate {
	return func(c *CrashLog) bool { return c.ProcessName == name }
}

// IdentifierIs matches crash logs by their parsed identifier.
func IdentifierIs(id string) Predicate {
	return func(c *CrashLog) bool { return c.Identifier == id }
}

// ProcessIdentifierIs matches crash logs by pid.
func ProcessIdentifierIs(pid int) Predicate {
	return func(c *CrashLog) bool { return c.ProcessIdentifier == pid }
}

// And combines predicates, matching only if every one matches.
func And(predicates ...Predicate) Predicate {
	return func(c *CrashLog) bool {
		for _, p := range predicates {
			if !p(c) {
				return false
			}
		}
		return true
	}
}

// Or combines predicates, matching if any one matches.
func Or(predicates ...Predicate) Predicate {
	return func(c *CrashLog) bool {
		for _, p := range predicates {
			if p(c) {
				return true
			}
		}
		return false
	}
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return func(c *CrashLog) bool { return !p(c) }
}

// Any matches every crash log; useful as a default when no filter is
// supplied by the caller.
func Any() Predicate {
	return func(*CrashLog) bool { return true }
}
