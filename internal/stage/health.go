package stage

import "strings"

// Health is a stage's readiness as reported on /api/status.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs a not-ready Health record with detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Dependency is a collaborator a stage cannot run without.
type Dependency struct {
	Label string
	Wired bool
}

// Needs pairs a collaborator label with whether it was supplied.
func Needs(label string, wired bool) Dependency {
	return Dependency{Label: label, Wired: wired}
}

// CheckDependencies reports name as ready when every dependency is wired,
// otherwise lists the missing ones in order.
func CheckDependencies(name string, deps ...Dependency) Health {
	var missing []string
	for _, dep := range deps {
		if !dep.Wired {
			missing = append(missing, dep.Label)
		}
	}
	if len(missing) == 0 {
		return Healthy(name)
	}
	return Unhealthy(name, strings.Join(missing, ", ")+" unavailable")
}
