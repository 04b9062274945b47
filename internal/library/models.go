package library

import (
	"time"

	"curator/internal/stage"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNew       Status = "new"
	StatusUpdated   Status = "updated"
	StatusProcessed Status = "processed"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusMissing   Status = "missing"
	StatusInvalid   Status = "invalid"
	StatusDeleted   Status = "deleted"
)

// AllStatuses lists every task status.
var AllStatuses = []Status{
	StatusNew,
	StatusUpdated,
	StatusProcessed,
	StatusDone,
	StatusError,
	StatusMissing,
	StatusInvalid,
	StatusDeleted,
}

// Eligible reports whether a task in this status is pending work.
func (s Status) Eligible() bool {
	return s == StatusNew || s == StatusUpdated
}

// Finished reports whether the status is a completion state a recheck may reset.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusProcessed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if known == s {
			return true
		}
	}
	return false
}

// Task is one row of the task table.
type Task struct {
	ID           int64
	Stage        stage.Name
	Domain       stage.Domain
	Subtype      string
	Ref          string
	Status       Status
	Version      int64
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// WorkItem converts the task into the scheduler's view of it.
func (t Task) WorkItem() stage.WorkItem {
	return stage.WorkItem{ID: t.ID, Domain: t.Domain, Subtype: t.Subtype, Ref: t.Ref, Version: t.Version}
}

// TaskSpec describes a task to enqueue.
type TaskSpec struct {
	Stage   stage.Name
	Domain  stage.Domain
	Subtype string
	Ref     string
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	Stage  stage.Name
	Status Status
	Limit  int
}

// MediaKind distinguishes movies from episodes.
type MediaKind string

const (
	MediaMovie   MediaKind = "movie"
	MediaEpisode MediaKind = "episode"
)

// Media is one video file in the library.
type Media struct {
	ID        int64
	Path      string
	Kind      MediaKind
	Title     string
	Year      int
	Season    int
	Episode   int
	TMDBID    int64
	IMDbID    string
	Overview  string
	Info      MediaInfo
	Watched   bool
	WatchedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MediaInfo is the technical description produced by probing the file.
type MediaInfo struct {
	DurationSeconds float64
	Width           int
	Height          int
	VideoCodec      string
	AudioCodecs     string
	Container       string
	SizeBytes       int64
	ProbedAt        *time.Time
}

// MediaMetadata is the descriptive data resolved from names, nfo files and TMDB.
type MediaMetadata struct {
	Kind     MediaKind
	Title    string
	Year     int
	Season   int
	Episode  int
	TMDBID   int64
	IMDbID   string
	Overview string
}

// Subtitle is an external subtitle file attached to a media row.
type Subtitle struct {
	ID       int64
	MediaID  int64
	Path     string
	Language string
	Forced   bool
}

// Person is a cast or crew member known to TMDB.
type Person struct {
	ID           int64
	TMDBID       int64
	Name         string
	Biography    string
	Birthday     string
	PlaceOfBirth string
	ProfilePath  string
	UpdatedAt    time.Time
}

// Credit links a person to a media row.
type Credit struct {
	MediaID   int64
	PersonID  int64
	Role      string
	Character string
	Job       string
	Order     int
}

// FilmographyEntry is one title a person worked on.
type FilmographyEntry struct {
	TMDBID    int64
	MediaType string
	Title     string
	Year      int
	Character string
	Job       string
}

// Artwork owner types.
const (
	OwnerMedia  = "media"
	OwnerPerson = "person"
)

// Artwork sources.
const (
	ArtworkLocal = "local"
	ArtworkTMDB  = "tmdb"
)

// Artwork is an image attached to a media row or a person.
type Artwork struct {
	ID         int64
	OwnerType  string
	OwnerID    int64
	Kind       string
	Source     string
	RemotePath string
	LocalPath  string
	Language   string
	Width      int
	Height     int
	Downloaded bool
	UpdatedAt  time.Time
}

// Trailer is a video hosted on an external site.
type Trailer struct {
	ID        int64
	MediaID   int64
	Site      string
	Key       string
	Name      string
	URL       string
	Available bool
	CheckedAt *time.Time
}

// FileRecord is what staging last observed for a path under a library root.
type FileRecord struct {
	Path    string
	Root    string
	Type    string
	Size    int64
	ModTime time.Time
	SeenAt  time.Time
}

// HealthSummary aggregates task counts for diagnostics.
type HealthSummary struct {
	Total   int
	Pending int
	Errors  int
	Done    int
}
