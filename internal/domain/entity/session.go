package entity

import "time"

// SessionStatus is the final state of a scrape session.
type SessionStatus string

const (
	SessionStatusSuccess SessionStatus = "success"
	SessionStatusPartial SessionStatus = "partial"
	SessionStatusFailed  SessionStatus = "failed"
)

// ScrapeSession is one logical scrape attempt that reached the fetch stage.
// A session is opened before the first fetch and closed with final counters
// by the owning worker; the core never deletes sessions.
//
// Sessions are opened with status failed so that a worker crash leaves an
// honest row behind; Close overwrites the status.
type ScrapeSession struct {
	ID            string
	Source        Source
	SourceURL     string
	Status        SessionStatus
	ProductsFound int
	ProductsStored int
	CreatedAt     time.Time
}

// RawPayload preserves the exact bytes of one fetched page, gzip-compressed
// and linked to the session that fetched it. Every byte handed to a parser is
// persisted here first, which makes post-mortem re-parsing possible.
type RawPayload struct {
	ID             int64
	SessionID      string
	Source         Source
	SourceURL      string
	CompressedBody []byte
	ContentType    string
	HTTPStatus     int
	ScrapedAt      time.Time
}
