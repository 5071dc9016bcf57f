package realtime

// Streams admins may subscribe to.
const (
	// StreamPermissions carries permission.signed, permission.granted and
	// permission.requested events.
	StreamPermissions = "permissions"
	// StreamActivities carries activity roster changes.
	StreamActivities = "activities"
)

// KnownStreams lists every stream the hub accepts subscriptions for.
func KnownStreams() []string {
	return []string{StreamPermissions, StreamActivities}
}
