package model

type EntityType string

const (
	EntityProject        EntityType = "project"
	EntityUser           EntityType = "user"
	EntityState          EntityType = "state"
	EntityLabel          EntityType = "label"
	EntityProperty       EntityType = "property"
	EntityPropertyOption EntityType = "property_option"
	EntityIssue          EntityType = "issue"
	EntityComment        EntityType = "comment"
	EntityAttachment     EntityType = "attachment"
)

// EntityDependencyOrder lists entity types in the order a job must process
// them: every type only references types that appear before it.
var EntityDependencyOrder = []EntityType{
	EntityProject,
	EntityUser,
	EntityState,
	EntityLabel,
	EntityProperty,
	EntityPropertyOption,
	EntityIssue,
	EntityComment,
	EntityAttachment,
}

var entityOrderIndex = func() map[EntityType]int {
	m := make(map[EntityType]int, len(EntityDependencyOrder))
	for i, et := range EntityDependencyOrder {
		m[et] = i
	}
	return m
}()

// DependsOn reports whether entity type a is processed after b.
func DependsOn(a, b EntityType) bool {
	return entityOrderIndex[a] > entityOrderIndex[b]
}
