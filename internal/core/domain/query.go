package domain

import "fmt"

// Query names a point-in-time question answered by the read model.
type Query string

const (
	QueryCurrentPhase          Query = "current_phase"
	QueryDestination           Query = "destination"
	QueryTracking              Query = "tracking"
	QueryNavigation            Query = "navigation"
	QueryPermissions           Query = "permissions"
	QueryCanRequestPermissions Query = "can_request_permissions"
	QueryShouldRunOrganicFlow  Query = "should_run_organic_flow"
	QueryIsLocked              Query = "is_locked"
)

// Queries lists every supported query.
var Queries = []Query{
	QueryCurrentPhase,
	QueryDestination,
	QueryTracking,
	QueryNavigation,
	QueryPermissions,
	QueryCanRequestPermissions,
	QueryShouldRunOrganicFlow,
	QueryIsLocked,
}

// ParseQuery validates a query name.
func ParseQuery(name string) (Query, error) {
	for _, q := range Queries {
		if string(q) == name {
			return q, nil
		}
	}
	return "", fmt.Errorf("unknown query %q", name)
}
