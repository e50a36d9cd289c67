package models

// TaskType identifies the category of automation work a job performs.
// The type doubles as the lock namespace kind: two jobs of the same type
// never process the same entity concurrently.
type TaskType string

const (
	TaskTypeBulkUpload  TaskType = "bulk_upload"
	TaskTypeBulkLogin   TaskType = "bulk_login"
	TaskTypeWarmup      TaskType = "warmup"
	TaskTypeAvatar      TaskType = "avatar"
	TaskTypeBio         TaskType = "bio"
	TaskTypeFollow      TaskType = "follow"
	TaskTypeProxyDiag   TaskType = "proxy_diag"
	TaskTypeMediaUniq   TaskType = "media_uniq"
	TaskTypeCookieRobot TaskType = "cookie_robot"
)

// AllTaskTypes lists every task type with a built-in runner.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeBulkUpload,
		TaskTypeBulkLogin,
		TaskTypeWarmup,
		TaskTypeAvatar,
		TaskTypeBio,
		TaskTypeFollow,
		TaskTypeProxyDiag,
		TaskTypeMediaUniq,
		TaskTypeCookieRobot,
	}
}

// IsValidTaskType reports whether t is a known task type
func IsValidTaskType(t TaskType) bool {
	for _, known := range AllTaskTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Upload method selectors for the bulk_upload task type.
const (
	UploadMethodBrowser = "browser" // full browser-automation flow
	UploadMethodAPI     = "api"     // direct mobile-session API flow
)
