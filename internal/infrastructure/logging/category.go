package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	Internal        Category = "Internal"
	Session         Category = "Session"
	Workspace       Category = "Workspace"
	Presence        Category = "Presence"
	ScreenShare     Category = "ScreenShare"
	Mongo           Category = "Mongo"
	RabbitMQ        Category = "RabbitMQ"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Session
	Admission  SubCategory = "Admission"
	Disconnect SubCategory = "Disconnect"
	Relay      SubCategory = "Relay"

	// Workspace
	SnapshotPersist SubCategory = "SnapshotPersist"

	// ScreenShare
	Signaling SubCategory = "Signaling"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	RoomID       ExtraKey = "RoomId"
	ConnectionID ExtraKey = "ConnectionId"
	Username     ExtraKey = "Username"
	EventName    ExtraKey = "Event"
	ClientIp     ExtraKey = "ClientIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	ErrorMessage ExtraKey = "ErrorMessage"
)
