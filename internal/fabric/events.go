package fabric

// Server-to-client event vocabulary. These names are consumed by the UI and
// must stay stable.
const (
	// Session lifecycle
	EventSessionCreated      = "lab-session-created"
	EventSessionUpdated      = "lab-session-updated"
	EventSessionDeleted      = "lab-session-deleted"
	EventSessionActivated    = "lab-session-activated"
	EventSessionDeactivated  = "lab-session-deactivated"
	EventSessionStatusChange = "lab-session-status-change"

	// Activities
	EventActivityCreated = "activity-created"
	EventActivityUpdated = "activity-updated"
	EventActivityDeleted = "activity-deleted"

	// Presence
	EventOnlineCountUpdate    = "online-count-update"
	EventStudentJoinedSession = "student-joined-session"

	// Submissions
	EventSubmissionCreated  = "submission-created"
	EventMySubmissionResult = "my-submission-result"

	// Monitoring
	EventMonitoringUpdate = "monitoring-update"
	EventMonitoringFlag   = "monitoring-flag"
	EventStudentActivity  = "student-activity"

	// AI
	EventHintRequested = "hint-requested"
)

// Client-to-server events handled by the socket layer.
const (
	msgJoinRoom        = "join-room"
	msgJoinLabSession  = "join-lab-session"
	msgLeaveLabSession = "leave-lab-session"
	msgSandboxRun      = "sandbox-run"
	msgSandboxInput    = "sandbox-input"
	msgSandboxStop     = "sandbox-stop"
)
