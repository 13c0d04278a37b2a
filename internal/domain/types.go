package domain

// ErrorKind classifies why a remote extraction failed
type ErrorKind string

const (
	KindRateLimited     ErrorKind = "rate_limited"
	KindInvalidDocument ErrorKind = "invalid_document"
	KindTransient       ErrorKind = "transient"
	KindUnauthorized    ErrorKind = "unauthorized"
)

// Retryable reports whether a caller-side retry policy may resubmit the task
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransient
}

// TaskStatus represents the outcome state of a task
type TaskStatus string

const (
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
)

// Messages used for failures synthesized by the pool rather than the client
const (
	MessageTimeout   = "timeout"
	MessageCancelled = "cancelled"
)

// SupportedExtensions lists the file extensions the extraction backends accept
var SupportedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}
