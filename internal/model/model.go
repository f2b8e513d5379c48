// Package model defines the domain types used across the application.
package model

import "time"

// Feed represents a subscribed RSS/Atom feed. Feeds are identified by
// their canonical URL and are never deleted implicitly.
type Feed struct {
	URL           string
	Title         string
	SiteURL       string
	Description   string
	LastFetchedAt *time.Time
	LastError     string
	CreatedAt     time.Time
}

// Candidate is a single feed entry as produced by the fetcher, before
// it has been reconciled into the store.
type Candidate struct {
	Title       string
	Link        string
	GUID        string
	Author      string
	Published   *time.Time
	ContentHTML string
	ContentText string
}

// SummaryState tracks the lifecycle of an article's machine summary.
type SummaryState string

// Summary states.
const (
	SummaryAbsent  SummaryState = "absent"
	SummaryPending SummaryState = "pending"
	SummaryReady   SummaryState = "ready"
	SummaryFailed  SummaryState = "failed"
)

// Article is a cached feed entry. Identity is the Fingerprint, stable
// across re-fetches of an unchanged item. Deleted is a tombstone: once
// set it is never cleared by reconciliation.
type Article struct {
	Fingerprint  string
	FeedURL      string
	GUID         string
	Title        string
	Link         string
	Author       string
	Published    *time.Time
	ContentHTML  string
	ContentText  string
	Summary      string
	SummaryState SummaryState
	SummaryModel string
	BookmarkID   int64
	BookmarkTags string
	Read         bool
	Starred      bool
	Deleted      bool
	LastViewedAt *time.Time
	CreatedAt    time.Time
	LastSeenAt   time.Time
}

// Filter selects which articles a listing returns. Deleted articles
// are never returned regardless of filter.
type Filter string

// Supported listing filters.
const (
	FilterUnread  Filter = "unread"
	FilterStarred Filter = "starred"
	FilterAll     Filter = "all"
)

// JobKind identifies a background job type. At most one live job per
// (article fingerprint, kind) runs at a time.
type JobKind string

// Supported job kinds.
const (
	JobContentFetch JobKind = "content-fetch"
	JobSummarize    JobKind = "summarize"
	JobBookmark     JobKind = "bookmark"
)
