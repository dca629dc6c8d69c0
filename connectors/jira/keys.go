package jira

import "strings"

// External id keyer. Jira records are scoped project_resource_id, the same
// composite the target dedupes re-imports on.
func externalKey(projectID, resourceID, id string) string {
	return strings.Join([]string{projectID, resourceID, id}, "_")
}
