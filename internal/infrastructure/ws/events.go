package ws

// Event names on the wire. These follow the kebab-case convention of the
// original protocol so existing clients keep working.
const (
	JoinRequest           = "join-request"
	JoinAccepted          = "join-accepted"
	JoinPendingApproval   = "join-pending-approval"
	JoinApprovalRequested = "join-approval-requested"
	JoinApprovalDecision  = "join-approval-decision"
	JoinRejected          = "join-rejected"
	JoinRequestResolved   = "join-request-resolved"
	UsernameExists        = "username-exists"

	UserJoined       = "user-joined"
	UserUpdated      = "user-updated"
	UserDisconnected = "user-disconnected"
	UserOffline      = "offline"
	UserOnline       = "online"

	SyncFileStructure = "sync-file-structure"
	DirectoryCreated  = "directory-created"
	DirectoryUpdated  = "directory-updated"
	DirectoryRenamed  = "directory-renamed"
	DirectoryDeleted  = "directory-deleted"
	FileCreated       = "file-created"
	FileUpdated       = "file-updated"
	FileOpened        = "file-opened"
	FileRenamed       = "file-renamed"
	FileDeleted       = "file-deleted"
	WorkspaceSync     = "workspace-sync"

	TypingStart = "typing-start"
	TypingPause = "typing-pause"
	CursorMove  = "cursor-move"

	ScreenShareStart         = "screen-share-start"
	ScreenShareStop          = "screen-share-stop"
	ScreenShareStarted       = "screen-share-started"
	ScreenShareStopped       = "screen-share-stopped"
	ScreenShareStatus        = "screen-share-status"
	ScreenShareStatusRequest = "screen-share-status-request"
	ScreenShareSignal        = "screen-share-signal"
)
