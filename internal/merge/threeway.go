// Package merge delegates the real three-way merge of a working copy to
// internal/vcs (a plain git merge, or git merge -X theirs for the
// "--force-theirs" pull policy), and separately produces
// a diff3-style textual report of what would conflict in a single note
// file — useful for surfacing a human-readable conflict summary without
// re-deriving it from git's own conflict markers. The report generator
// solves this for a generic two-side merge, applied here to three in-memory
// note bodies instead of blob hashes resolved through a repository.
package merge

import "sort"

// RegionType classifies one contiguous span of a three-way diff.
type RegionType string

const (
	RegionContext  RegionType = "context"
	RegionOurs     RegionType = "ours"
	RegionTheirs   RegionType = "theirs"
	RegionConflict RegionType = "conflict"
)

// Region is one classified span of the merge, in base-line order.
type Region struct {
	Type        RegionType
	BaseStart   int // 1-based
	BaseLines   []string
	OursLines   []string
	TheirsLines []string
}

// ConflictType summarizes the overall shape of a file's three-way diff.
type ConflictType string

const (
	ConflictNone         ConflictType = "none"
	ConflictConflicting  ConflictType = "conflicting"
	ConflictBothAdded    ConflictType = "both_added"
	ConflictDeleteModify ConflictType = "delete_modify"
)

// Stats summarizes a Report's regions.
type Stats struct {
	OursAdded       int
	OursDeleted     int
	TheirsAdded     int
	TheirsDeleted   int
	ConflictRegions int
}

// Report is the full three-way diff of one note file.
type Report struct {
	Path         string
	ConflictType ConflictType
	IsBinary     bool
	Truncated    bool
	Regions      []Region
	Stats        Stats
}

// maxBlobSize bounds the report generator to avoid doing line-level work on
// a pathologically large note body.
const maxBlobSize = 512 * 1024

// ComputeReport computes the three-way diff report for one note's base,
// ours, and theirs content. Any of the three may be nil to signal the file
// didn't exist on that side.
func ComputeReport(path string, base, ours, theirs []byte) *Report {
	result := &Report{Path: path}

	switch {
	case base == nil && ours != nil && theirs != nil:
		result.ConflictType = ConflictBothAdded
	case ours == nil && theirs != nil:
		result.ConflictType = ConflictDeleteModify
	case ours != nil && theirs == nil:
		result.ConflictType = ConflictDeleteModify
	}

	if isBinaryContent(base) || isBinaryContent(ours) || isBinaryContent(theirs) {
		result.IsBinary = true
		return result
	}
	if len(base) > maxBlobSize || len(ours) > maxBlobSize || len(theirs) > maxBlobSize {
		result.Truncated = true
		return result
	}

	baseLines := splitLines(base)
	oursLines := splitLines(ours)
	theirsLines := splitLines(theirs)

	editsOurs := computeEdits(baseLines, oursLines)
	editsTheirs := computeEdits(baseLines, theirsLines)

	blocksOurs := editsToBlocks(editsOurs, baseLines, oursLines)
	blocksTheirs := editsToBlocks(editsTheirs, baseLines, theirsLines)

	result.Regions = mergeWalk(baseLines, blocksOurs, blocksTheirs)
	result.Stats = computeStats(result.Regions)

	if result.ConflictType == "" {
		if result.Stats.ConflictRegions > 0 {
			result.ConflictType = ConflictConflicting
		} else {
			result.ConflictType = ConflictNone
		}
	}
	return result
}

type editBlock struct {
	baseStart int
	baseEnd   int
	newLines  []string
}

func editsToBlocks(edits []edit, oldLines, newLines []string) []editBlock {
	blocks := make([]editBlock, 0)
	i := 0
	for i < len(edits) {
		if edits[i].Type == editKeep {
			i++
			continue
		}

		block := editBlock{baseStart: -1, baseEnd: -1, newLines: make([]string, 0)}
		for i < len(edits) && edits[i].Type != editKeep {
			switch edits[i].Type {
			case editDelete:
				if block.baseStart == -1 {
					block.baseStart = edits[i].OldLine
				}
				block.baseEnd = edits[i].OldLine + 1
			case editInsert:
				if edits[i].NewLine < len(newLines) {
					block.newLines = append(block.newLines, newLines[edits[i].NewLine])
				}
			}
			i++
		}

		if block.baseStart == -1 {
			if i < len(edits) {
				block.baseStart = edits[i].OldLine
			} else {
				block.baseStart = len(oldLines)
			}
			block.baseEnd = block.baseStart
		}

		blocks = append(blocks, block)
	}
	return blocks
}

func mergeWalk(baseLines []string, blocksOurs, blocksTheirs []editBlock) []Region {
	regions := make([]Region, 0)

	sort.Slice(blocksOurs, func(i, j int) bool { return blocksOurs[i].baseStart < blocksOurs[j].baseStart })
	sort.Slice(blocksTheirs, func(i, j int) bool { return blocksTheirs[i].baseStart < blocksTheirs[j].baseStart })

	idxOurs, idxTheirs, basePos := 0, 0, 0

	for idxOurs < len(blocksOurs) || idxTheirs < len(blocksTheirs) {
		var nextOurs, nextTheirs *editBlock
		if idxOurs < len(blocksOurs) {
			nextOurs = &blocksOurs[idxOurs]
		}
		if idxTheirs < len(blocksTheirs) {
			nextTheirs = &blocksTheirs[idxTheirs]
		}

		switch {
		case nextOurs != nil && nextTheirs != nil:
			if blocksOverlap(*nextOurs, *nextTheirs) {
				overlapStart := nextOurs.baseStart
				if nextTheirs.baseStart < overlapStart {
					overlapStart = nextTheirs.baseStart
				}
				if basePos < overlapStart {
					regions = appendContext(regions, baseLines, basePos, overlapStart)
					basePos = overlapStart
				}

				overlapEnd := nextOurs.baseEnd
				if nextTheirs.baseEnd > overlapEnd {
					overlapEnd = nextTheirs.baseEnd
				}

				combinedOurs := append([]string{}, blocksOurs[idxOurs].newLines...)
				oursStart, oursEnd := blocksOurs[idxOurs].baseStart, blocksOurs[idxOurs].baseEnd
				idxOurs++
				for idxOurs < len(blocksOurs) && blockInRange(blocksOurs[idxOurs], overlapEnd) {
					combinedOurs = append(combinedOurs, blocksOurs[idxOurs].newLines...)
					if blocksOurs[idxOurs].baseEnd > overlapEnd {
						overlapEnd = blocksOurs[idxOurs].baseEnd
					}
					oursEnd = blocksOurs[idxOurs].baseEnd
					idxOurs++
				}

				combinedTheirs := append([]string{}, blocksTheirs[idxTheirs].newLines...)
				theirsStart, theirsEnd := blocksTheirs[idxTheirs].baseStart, blocksTheirs[idxTheirs].baseEnd
				idxTheirs++
				for idxTheirs < len(blocksTheirs) && blockInRange(blocksTheirs[idxTheirs], overlapEnd) {
					combinedTheirs = append(combinedTheirs, blocksTheirs[idxTheirs].newLines...)
					if blocksTheirs[idxTheirs].baseEnd > overlapEnd {
						overlapEnd = blocksTheirs[idxTheirs].baseEnd
					}
					theirsEnd = blocksTheirs[idxTheirs].baseEnd
					idxTheirs++
				}

				if slicesEqual(combinedOurs, combinedTheirs) && oursStart == theirsStart && oursEnd == theirsEnd {
					regions = append(regions, Region{
						Type: RegionOurs, BaseStart: basePos + 1,
						BaseLines: copySlice(baseLines, basePos, overlapEnd), OursLines: combinedOurs,
					})
				} else {
					regions = append(regions, Region{
						Type: RegionConflict, BaseStart: basePos + 1,
						BaseLines: copySlice(baseLines, basePos, overlapEnd),
						OursLines: combinedOurs, TheirsLines: combinedTheirs,
					})
				}
				basePos = overlapEnd
				continue
			}

			if nextOurs.baseStart <= nextTheirs.baseStart {
				if basePos < nextOurs.baseStart {
					regions = appendContext(regions, baseLines, basePos, nextOurs.baseStart)
					basePos = nextOurs.baseStart
				}
				regions = append(regions, Region{
					Type: RegionOurs, BaseStart: basePos + 1,
					BaseLines: copySlice(baseLines, basePos, nextOurs.baseEnd), OursLines: nextOurs.newLines,
				})
				basePos = nextOurs.baseEnd
				idxOurs++
			} else {
				if basePos < nextTheirs.baseStart {
					regions = appendContext(regions, baseLines, basePos, nextTheirs.baseStart)
					basePos = nextTheirs.baseStart
				}
				regions = append(regions, Region{
					Type: RegionTheirs, BaseStart: basePos + 1,
					BaseLines: copySlice(baseLines, basePos, nextTheirs.baseEnd), TheirsLines: nextTheirs.newLines,
				})
				basePos = nextTheirs.baseEnd
				idxTheirs++
			}
		case nextOurs != nil:
			if basePos < nextOurs.baseStart {
				regions = appendContext(regions, baseLines, basePos, nextOurs.baseStart)
				basePos = nextOurs.baseStart
			}
			regions = append(regions, Region{
				Type: RegionOurs, BaseStart: basePos + 1,
				BaseLines: copySlice(baseLines, basePos, nextOurs.baseEnd), OursLines: nextOurs.newLines,
			})
			basePos = nextOurs.baseEnd
			idxOurs++
		default:
			if basePos < nextTheirs.baseStart {
				regions = appendContext(regions, baseLines, basePos, nextTheirs.baseStart)
				basePos = nextTheirs.baseStart
			}
			regions = append(regions, Region{
				Type: RegionTheirs, BaseStart: basePos + 1,
				BaseLines: copySlice(baseLines, basePos, nextTheirs.baseEnd), TheirsLines: nextTheirs.newLines,
			})
			basePos = nextTheirs.baseEnd
			idxTheirs++
		}
	}

	if basePos < len(baseLines) {
		regions = appendContext(regions, baseLines, basePos, len(baseLines))
	}
	return regions
}

func blocksOverlap(a, b editBlock) bool {
	return a.baseStart < b.baseEnd && b.baseStart < a.baseEnd ||
		(a.baseStart == a.baseEnd && a.baseStart >= b.baseStart && a.baseStart <= b.baseEnd) ||
		(b.baseStart == b.baseEnd && b.baseStart >= a.baseStart && b.baseStart <= a.baseEnd)
}

func blockInRange(b editBlock, overlapEnd int) bool {
	return b.baseStart < overlapEnd || (b.baseStart == b.baseEnd && b.baseStart <= overlapEnd)
}

func appendContext(regions []Region, baseLines []string, from, to int) []Region {
	if from >= to {
		return regions
	}
	return append(regions, Region{Type: RegionContext, BaseStart: from + 1, BaseLines: copySlice(baseLines, from, to)})
}

func copySlice(lines []string, from, to int) []string {
	if from >= to || from >= len(lines) {
		return []string{}
	}
	if to > len(lines) {
		to = len(lines)
	}
	out := make([]string, to-from)
	copy(out, lines[from:to])
	return out
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func computeStats(regions []Region) Stats {
	var s Stats
	for _, r := range regions {
		switch r.Type {
		case RegionOurs:
			s.OursDeleted += len(r.BaseLines)
			s.OursAdded += len(r.OursLines)
		case RegionTheirs:
			s.TheirsDeleted += len(r.BaseLines)
			s.TheirsAdded += len(r.TheirsLines)
		case RegionConflict:
			s.ConflictRegions++
			s.OursDeleted += len(r.BaseLines)
			s.OursAdded += len(r.OursLines)
			s.TheirsDeleted += len(r.BaseLines)
			s.TheirsAdded += len(r.TheirsLines)
		}
	}
	return s
}
