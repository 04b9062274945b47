package library

import (
	"fmt"
	"strconv"
	"strings"

	"curator/internal/services"
)

// Ref prefixes of tasks that point at library rows rather than files.
const (
	RefMedia   = "media"
	RefPerson  = "person"
	RefArtwork = "artwork"
	RefTrailer = "trailer"
)

// Ref builds a task ref such as "media:42".
func Ref(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}

// MediaRef is shorthand for Ref(RefMedia, id).
func MediaRef(id int64) string { return Ref(RefMedia, id) }

// PersonRef is shorthand for Ref(RefPerson, id).
func PersonRef(id int64) string { return Ref(RefPerson, id) }

// ParseRef splits a row ref into its kind and identifier.
func ParseRef(ref string) (string, int64, error) {
	kind, raw, ok := strings.Cut(ref, ":")
	if !ok || kind == "" {
		return "", 0, fmt.Errorf("%w: malformed ref %q", services.ErrValidation, ref)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: malformed ref %q", services.ErrValidation, ref)
	}
	return kind, id, nil
}

// ParseRefOf parses ref and checks it names the wanted kind.
func ParseRefOf(ref, want string) (int64, error) {
	kind, id, err := ParseRef(ref)
	if err != nil {
		return 0, err
	}
	if kind != want {
		return 0, fmt.Errorf("%w: ref %q is not a %s ref", services.ErrValidation, ref, want)
	}
	return id, nil
}
