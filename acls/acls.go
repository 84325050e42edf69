package acls

/*

ACLs gate the RPC lifecycle surface.

Principals are declared in the node config together with their roles
and any directly granted permission tokens. Code that wants to act on
behalf of a principal checks the intent against an ACL_PERMISSION
below.

Starting a flow over RPC is special: the permission is scoped to the
flow class. A principal may hold the token "StartFlow.<class>" for a
single class, or the ALL_FLOWS permission (directly or through the
administrator role) as a global override.

*/

import (
	"fmt"
	"strings"

	"github.com/varunkm/corda/config"
)

type ACL_PERMISSION int

const (
	NO_PERMISSIONS ACL_PERMISSION = iota

	// Start a specific flow class via RPC. Checked together with
	// the class name.
	START_FLOW

	// Start any flow class via RPC.
	ALL_FLOWS

	// Read flow results, snapshots and feeds.
	READ_RESULTS

	// Request termination of a running flow.
	KILL_FLOW

	// Manage the node itself.
	SERVER_ADMIN

	// When adding new permissions - update CheckAccess and
	// GetRolePermissions.
)

func (self ACL_PERMISSION) String() string {
	switch self {
	case NO_PERMISSIONS:
		return "NO_PERMISSIONS"
	case START_FLOW:
		return "START_FLOW"
	case ALL_FLOWS:
		return "ALL_FLOWS"
	case READ_RESULTS:
		return "READ_RESULTS"
	case KILL_FLOW:
		return "KILL_FLOW"
	case SERVER_ADMIN:
		return "SERVER_ADMIN"
	}
	return fmt.Sprintf("%d", self)
}

func GetPermission(name string) ACL_PERMISSION {
	switch strings.ToUpper(name) {
	case "NO_PERMISSIONS":
		return NO_PERMISSIONS
	case "START_FLOW":
		return START_FLOW
	case "ALL_FLOWS":
		return ALL_FLOWS
	case "READ_RESULTS":
		return READ_RESULTS
	case "KILL_FLOW":
		return KILL_FLOW
	case "SERVER_ADMIN":
		return SERVER_ADMIN
	}
	return NO_PERMISSIONS
}

// StartFlowPermission builds the config token granting an RPC start
// of a single flow class.
func StartFlowPermission(class_name string) string {
	return "StartFlow." + class_name
}

// CheckAccess checks principal against the required permission. For
// START_FLOW, args[0] must be the flow class name.
func CheckAccess(
	config_obj *config.Config,
	principal string,
	permission ACL_PERMISSION, args ...string) (bool, error) {

	user := getUser(config_obj, principal)
	if user == nil {
		return false, fmt.Errorf("unknown principal %v", principal)
	}

	granted := make(map[string]bool)
	for _, role := range user.Roles {
		for _, p := range GetRolePermissions(role) {
			granted[p.String()] = true
		}
	}
	for _, token := range user.Permissions {
		granted[token] = true
	}

	switch permission {
	case START_FLOW:
		if len(args) != 1 {
			return false, fmt.Errorf(
				"START_FLOW check requires a flow class name")
		}
		if granted[ALL_FLOWS.String()] {
			return true, nil
		}
		return granted[StartFlowPermission(args[0])], nil

	default:
		return granted[permission.String()], nil
	}
}

func getUser(config_obj *config.Config, principal string) *config.UserConfig {
	for _, user := range config_obj.Users {
		if user.Name == principal {
			return user
		}
	}
	return nil
}
