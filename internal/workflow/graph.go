package workflow

import (
	"fmt"
	"sort"
	"strings"

	"curator/internal/stage"
)

// Graph maps a stage to the stages it triggers after processing a non-empty
// batch. It is a trigger relation only; there is no data flow along edges.
type Graph map[stage.Name][]stage.Name

// DefaultGraph is the production trigger graph.
var DefaultGraph = Graph{
	stage.ImportVideo:         {stage.MediaFileScan, stage.MetadataVideo},
	stage.ImportNFO:           {stage.MetadataVideo},
	stage.ImportImage:         {stage.ArtworkScan},
	stage.ImportWatched:       nil,
	stage.ImportSubtitle:      {stage.MediaFileScan},
	stage.MediaFileScan:       nil,
	stage.MetadataVideo:       {stage.MetadataPeople, stage.ArtworkScan, stage.TrailerScan},
	stage.MetadataPeople:      {stage.MetadataFilmography, stage.ArtworkScan},
	stage.MetadataFilmography: {stage.ArtworkScan},
	stage.ArtworkScan:         {stage.ArtworkProcess, stage.TrailerScan},
	stage.ArtworkProcess:      nil,
	stage.TrailerScan:         {stage.TrailerProcess},
	stage.TrailerProcess:      nil,
	stage.Deletion:            nil,
}

// Downstream returns the stages triggered by name.
func (g Graph) Downstream(name stage.Name) []stage.Name {
	return g[name]
}

// Upstream returns the stages that trigger name, sorted.
func (g Graph) Upstream(name stage.Name) []stage.Name {
	var out []stage.Name
	for from, targets := range g {
		for _, target := range targets {
			if target == name {
				out = append(out, from)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate reports edges that reference stages not present in known, and
// stages that list themselves as downstream.
func (g Graph) Validate(known []stage.Name) error {
	index := make(map[stage.Name]struct{}, len(known))
	for _, name := range known {
		index[name] = struct{}{}
	}
	var problems []string
	for from, targets := range g {
		if _, ok := index[from]; !ok {
			problems = append(problems, fmt.Sprintf("unknown stage %q", from))
			continue
		}
		for _, target := range targets {
			if target == from {
				problems = append(problems, fmt.Sprintf("%s triggers itself", from))
				continue
			}
			if _, ok := index[target]; !ok {
				problems = append(problems, fmt.Sprintf("%s triggers unknown stage %q", from, target))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid stage graph: %s", strings.Join(problems, "; "))
}
