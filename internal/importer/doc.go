// Package importer implements the import stages that turn staged files into
// library rows: videos become media, and nfo files, images, watched markers
// and subtitles are attached to the media they sit next to.
package importer
