package clickup

import "strings"

// External id keyers. Pure string construction: the same source identifiers
// always produce the same key, and the hyphen separator never appears in
// ClickUp's numeric/uuid identifiers, so distinct tuples cannot collide.

func projectKey(teamID, listID string) string {
	return join(teamID, listID)
}

func userKey(teamID, userID string) string {
	return join(teamID, userID)
}

func stateKey(listID, status string) string {
	return join(listID, status)
}

func taskKey(listID, taskID string) string {
	return join(listID, taskID)
}

func customFieldKey(listID, fieldID string) string {
	return join(listID, fieldID)
}

func customFieldOptionKey(listID, fieldID, optionID string) string {
	return join(listID, fieldID, optionID)
}

func commentKey(taskID, commentID string) string {
	return join(taskID, commentID)
}

func attachmentKey(taskID, attachmentID string) string {
	return join(taskID, attachmentID)
}

func join(parts ...string) string {
	return strings.Join(parts, "-")
}
