package stage

// Name identifies a pipeline stage.
type Name string

const (
	ImportVideo         Name = "import-video"
	ImportNFO           Name = "import-nfo"
	ImportImage         Name = "import-image"
	ImportWatched       Name = "import-watched"
	ImportSubtitle      Name = "import-subtitle"
	MediaFileScan       Name = "mediafile-scan"
	MetadataVideo       Name = "metadata-video"
	MetadataPeople      Name = "metadata-people"
	MetadataFilmography Name = "metadata-filmography"
	ArtworkScan         Name = "artwork-scan"
	ArtworkProcess      Name = "artwork-process"
	TrailerScan         Name = "trailer-scan"
	TrailerProcess      Name = "trailer-process"
	Deletion            Name = "deletion"
)

// All lists every stage in pipeline order.
var All = []Name{
	ImportVideo,
	ImportNFO,
	ImportImage,
	ImportWatched,
	ImportSubtitle,
	MediaFileScan,
	MetadataVideo,
	MetadataPeople,
	MetadataFilmography,
	ArtworkScan,
	ArtworkProcess,
	TrailerScan,
	TrailerProcess,
	Deletion,
}

// Valid reports whether n names a known stage.
func (n Name) Valid() bool {
	for _, known := range All {
		if known == n {
			return true
		}
	}
	return false
}

// ImportStageFor returns the import stage responsible for a staged file type.
func ImportStageFor(fileType string) (Name, bool) {
	switch fileType {
	case "video":
		return ImportVideo, true
	case "nfo":
		return ImportNFO, true
	case "image":
		return ImportImage, true
	case "watched":
		return ImportWatched, true
	case "subtitle":
		return ImportSubtitle, true
	default:
		return "", false
	}
}
