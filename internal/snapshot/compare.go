package snapshot

import "github.com/systemshift/snapvcs/internal/digest"

// ChangeKind classifies a path that differs between two snapshots.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Change describes one differing path. From is Undef for additions and To
// is Undef for deletions.
type Change struct {
	Path string
	Kind ChangeKind
	From digest.Digest
	To   digest.Digest
}

// Compare lists the paths that differ from one snapshot to the next, in path
// order. A nil snapshot counts as empty.
func Compare(from, to *Snapshot) []Change {
	if from == nil {
		from = Empty
	}
	if to == nil {
		to = Empty
	}
	var changes []Change
	a, b := from.entries, to.entries
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i].Path < b[j].Path):
			changes = append(changes, Change{Path: a[i].Path, Kind: Deleted, From: a[i].Digest})
			i++
		case i == len(a) || b[j].Path < a[i].Path:
			changes = append(changes, Change{Path: b[j].Path, Kind: Added, To: b[j].Digest})
			j++
		default:
			if a[i].Digest != b[j].Digest {
				changes = append(changes, Change{Path: a[i].Path, Kind: Modified, From: a[i].Digest, To: b[j].Digest})
			}
			i++
			j++
		}
	}
	return changes
}
