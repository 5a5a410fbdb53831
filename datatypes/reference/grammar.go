// Package reference implements the Ref datatype — a named pointer to a
// version, organized into branches — and the grammar for specifying a
// revision along a branch, grounded closely on the original
// implementation's string-based version specifier format (since rewritten
// as a target for a future, more git-like format, per its own TODO, but
// still the live wire syntax this repository speaks).
package reference

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/internal/herror"
)

// RevisionPath names the path a revision offset is taken along: the
// current tip (Head) or a named path.
type RevisionPath struct {
	Head bool
	Name string
}

func (p RevisionPath) String() string {
	if p.Head {
		return "HEAD"
	}
	return p.Name
}

// ParseRevisionPath accepts "", "head", "HEAD" (any case) as Head, and any
// other string as a named path.
func ParseRevisionPath(s string) RevisionPath {
	if s == "" || strings.EqualFold(s, "head") {
		return RevisionPath{Head: true}
	}
	return RevisionPath{Name: s}
}

// RevisionSpecifier is a path plus a negative offset from that path's tip:
// "~3" means three commits back from HEAD.
type RevisionSpecifier struct {
	Path   RevisionPath
	Offset int64
}

// ParseRevisionSpecifier parses "", "~3", "squash", or "squash~1".
func ParseRevisionSpecifier(s string) (RevisionSpecifier, error) {
	tokens := strings.Split(s, "~")
	switch len(tokens) {
	case 1:
		return RevisionSpecifier{Path: ParseRevisionPath(tokens[0])}, nil
	case 2:
		n, err := strconv.ParseInt(tokens[1], 10, 64)
		if err != nil {
			return RevisionSpecifier{}, herror.Model("invalid revision offset %q: %v", tokens[1], err)
		}
		return RevisionSpecifier{Path: ParseRevisionPath(tokens[0]), Offset: -n}, nil
	default:
		return RevisionSpecifier{}, herror.Model("invalid revision specifier %q", s)
	}
}

// UuidSpecifier is either a complete UUID or a partial prefix for lookup.
type UuidSpecifier struct {
	Complete uuid.UUID
	Partial  string
	IsFull   bool
}

func ParseUuidSpecifier(s string) UuidSpecifier {
	if id, err := uuid.Parse(s); err == nil {
		return UuidSpecifier{Complete: id, IsFull: true}
	}
	return UuidSpecifier{Partial: s}
}

// ArtifactSpecifier identifies an artifact by UUID ("#abcd1") or by name.
type ArtifactSpecifier struct {
	UUID   UuidSpecifier
	Name   string
	ByUUID bool
}

func ParseArtifactSpecifier(s string) ArtifactSpecifier {
	if strings.HasPrefix(s, "#") {
		return ArtifactSpecifier{UUID: ParseUuidSpecifier(s[1:]), ByUUID: true}
	}
	return ArtifactSpecifier{Name: s}
}

// BranchRevisionSpecifier is a branch name plus a revision specifier along
// it: "master", "master~1", "master:squash~1".
type BranchRevisionSpecifier struct {
	Name     string
	Revision RevisionSpecifier
}

func ParseBranchRevisionSpecifier(s string) (BranchRevisionSpecifier, error) {
	tokens := strings.SplitN(s, ":", 2)
	switch len(tokens) {
	case 1:
		name, offset, hasOffset := strings.Cut(tokens[0], "~")
		revStr := ""
		if hasOffset {
			revStr = "~" + offset
		}
		rev, err := ParseRevisionSpecifier(revStr)
		if err != nil {
			return BranchRevisionSpecifier{}, err
		}
		return BranchRevisionSpecifier{Name: name, Revision: rev}, nil
	case 2:
		rev, err := ParseRevisionSpecifier(tokens[1])
		if err != nil {
			return BranchRevisionSpecifier{}, err
		}
		return BranchRevisionSpecifier{Name: tokens[0], Revision: rev}, nil
	default:
		return BranchRevisionSpecifier{}, herror.Model("invalid branch revision specifier %q", s)
	}
}

// VersionSpecifier identifies a version either directly by UUID ("#abcd1")
// or by walking a branch of one artifact ("all") to a tip-relative revision
// of a named branch ("master:squash~1"), then reading off a dependency
// artifact's version at that point ("data"): "all/master:squash~1/data".
type VersionSpecifier struct {
	UUID        UuidSpecifier
	ByUUID      bool
	RefArtifact ArtifactSpecifier
	BranchRev   BranchRevisionSpecifier
	Artifact    ArtifactSpecifier
}

func ParseVersionSpecifier(s string) (VersionSpecifier, error) {
	tokens := strings.Split(s, "/")
	switch len(tokens) {
	case 1:
		if !strings.HasPrefix(tokens[0], "#") {
			return VersionSpecifier{}, herror.Model("invalid version specifier %q", s)
		}
		return VersionSpecifier{UUID: ParseUuidSpecifier(tokens[0][1:]), ByUUID: true}, nil
	case 3:
		branchRev, err := ParseBranchRevisionSpecifier(tokens[1])
		if err != nil {
			return VersionSpecifier{}, err
		}
		return VersionSpecifier{
			RefArtifact: ParseArtifactSpecifier(tokens[0]),
			BranchRev:   branchRev,
			Artifact:    ParseArtifactSpecifier(tokens[2]),
		}, nil
	default:
		return VersionSpecifier{}, herror.Model("invalid version specifier %q", s)
	}
}
