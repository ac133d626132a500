package reservation

import (
	"fmt"
	"strings"
)

// LocationSpec names one place to poll. Camping locations carry a park, a
// campground and the wanted sites; permit locations carry a park and the
// wanted entry points. Sites and EntryPoints are ordered by preference, and
// an empty list accepts any unit.
type LocationSpec struct {
	Kind        Kind
	Park        string
	Campground  string
	Sites       []string
	EntryPoints []string
}

// ParseLocation reads the compact forms
//
//	camping: "park:campground:site,site" or "campground:site,site"
//	permit:  "park:entry,entry" or "park"
func ParseLocation(kind Kind, s string) (LocationSpec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	loc := LocationSpec{Kind: kind}
	switch kind {
	case KindCamping:
		switch len(parts) {
		case 2:
			loc.Campground = strings.TrimSpace(parts[0])
			loc.Sites = splitList(parts[1])
		case 3:
			loc.Park = strings.TrimSpace(parts[0])
			loc.Campground = strings.TrimSpace(parts[1])
			loc.Sites = splitList(parts[2])
		default:
			return LocationSpec{}, fmt.Errorf("camping location %q: want park:campground:sites", s)
		}
		if loc.Campground == "" {
			return LocationSpec{}, fmt.Errorf("camping location %q: campground is required", s)
		}
	case KindPermit:
		switch len(parts) {
		case 1:
			loc.Park = strings.TrimSpace(parts[0])
		case 2:
			loc.Park = strings.TrimSpace(parts[0])
			loc.EntryPoints = splitList(parts[1])
		default:
			return LocationSpec{}, fmt.Errorf("permit location %q: want park:entry points", s)
		}
		if loc.Park == "" {
			return LocationSpec{}, fmt.Errorf("permit location %q: park is required", s)
		}
	default:
		return LocationSpec{}, fmt.Errorf("unknown location kind %q", kind)
	}
	return loc, nil
}

// Name is the human form used in messages: "park - campground" for camping,
// the park for permits. An empty park is dropped.
func (l LocationSpec) Name() string {
	if l.Kind == KindPermit {
		return l.Park
	}
	if l.Park == "" {
		return l.Campground
	}
	return l.Park + " - " + l.Campground
}

// String is the compact form accepted by ParseLocation.
func (l LocationSpec) String() string {
	switch l.Kind {
	case KindPermit:
		if len(l.EntryPoints) == 0 {
			return l.Park
		}
		return l.Park + ":" + strings.Join(l.EntryPoints, ",")
	default:
		head := l.Campground
		if l.Park != "" {
			head = l.Park + ":" + head
		}
		return head + ":" + strings.Join(l.Sites, ",")
	}
}

// Units returns the wanted sites or entry points.
func (l LocationSpec) Units() []string {
	if l.Kind == KindPermit {
		return l.EntryPoints
	}
	return l.Sites
}

// Clone returns a copy that shares no slices with l.
func (l LocationSpec) Clone() LocationSpec {
	l.Sites = cloneStrings(l.Sites)
	l.EntryPoints = cloneStrings(l.EntryPoints)
	return l
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
