package stage

import "fmt"

// Domain tags the kind of entity a work item refers to.
type Domain string

const (
	DomainFile        Domain = "file"
	DomainVideo       Domain = "video"
	DomainPerson      Domain = "person"
	DomainFilmography Domain = "filmography"
	DomainArtwork     Domain = "artwork"
	DomainTrailer     Domain = "trailer"
)

// WorkItem is an opaque reference to one unit of pending work. Items are
// created by a Source and never mutated afterwards.
type WorkItem struct {
	ID      int64
	Domain  Domain
	Subtype string
	// Ref is the natural key of the work: a file path, "media:<id>",
	// "person:<id>" and so on.
	Ref string
	// Version is the optimistic lock token read together with the item.
	Version int64
}

func (w WorkItem) String() string {
	if w.Subtype != "" {
		return fmt.Sprintf("%s/%s#%d", w.Domain, w.Subtype, w.ID)
	}
	return fmt.Sprintf("%s#%d", w.Domain, w.ID)
}

// Batch is a bounded snapshot of work items fetched for one stage run.
type Batch []WorkItem

// Len returns the number of items in the batch.
func (b Batch) Len() int { return len(b) }

// Empty reports whether the batch carries no work.
func (b Batch) Empty() bool { return len(b) == 0 }
