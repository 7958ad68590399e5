package models

// ThreadMeta is the per-thread bookkeeping record stored alongside the
// message log. A thread exists iff its meta record exists; clearing a
// thread removes both the log and the meta.
type ThreadMeta struct {
	ID string `json:"id"`
	// CreatedTS / UpdatedTS are unix nanoseconds.
	CreatedTS int64 `json:"created_ts,omitempty"`
	UpdatedTS int64 `json:"updated_ts,omitempty"`
	// LastTS is the timestamp of the most recently appended message; new
	// appends never go below it even if the wall clock steps backwards.
	LastTS int64 `json:"last_ts,omitempty"`
}

// Statistics summarizes one thread's log.
type Statistics struct {
	TotalMessages           int    `json:"totalMessages"`
	UserMessages            int    `json:"userMessages"`
	CounterpartyMessages    int    `json:"counterpartyMessages"`
	MessagesWithAttachments int    `json:"messagesWithAttachments"`
	UnreadCount             int    `json:"unreadCount"`
	FirstTimestamp          *int64 `json:"firstTimestamp"`
	LastTimestamp           *int64 `json:"lastTimestamp"`
}

// Snapshot is the import/export wire format. Exactly one of the two
// shapes is populated: a whole-store snapshot carries AllThreads, a
// single-thread snapshot carries ThreadID+Messages. Import dispatches on
// which shape is present.
type Snapshot struct {
	AllThreads map[string][]Message `json:"allThreads,omitempty"`
	ThreadID   string               `json:"threadId,omitempty"`
	Messages   []Message            `json:"messages,omitempty"`
	// ExportDate is an RFC 3339 instant recorded at export time; it is
	// informational and ignored on import.
	ExportDate string `json:"exportDate"`
}

// WholeStore reports whether s is a whole-store snapshot.
func (s *Snapshot) WholeStore() bool { return s.AllThreads != nil }
