package store

// Key layout for one request. All five records share the request id so the
// whole lifecycle can be inspected with a single prefix scan.

const (
	requestPrefix  = "request:"
	progressPrefix = "progress:"
	resultPrefix   = "result:"
	lockPrefix     = "processing_lock:"
	donePrefix     = "completed:"
)

func RequestKey(id string) string  { return requestPrefix + id }
func ProgressKey(id string) string { return progressPrefix + id }
func ResultKey(id string) string   { return resultPrefix + id }
func LockKey(id string) string     { return lockPrefix + id }

// CompletedKey marks a request whose pipeline finished successfully. Its
// presence short-circuits duplicate executions.
func CompletedKey(id string) string { return donePrefix + id }

func ProgressPrefix() string { return progressPrefix }
func ResultPrefix() string   { return resultPrefix }
