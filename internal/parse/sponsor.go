package parse

import (
	"path"
	"regexp"
	"strings"

	"github.com/sells-group/congress-cli/internal/model"
)

// sponsorRe matches "Rep. Scalise, Steve [R-LA-1]" and its Senate,
// Delegate and Resident Commissioner forms.
var sponsorRe = regexp.MustCompile(`^(Rep\.|Sen\.|Del\.|Resident Commissioner)\s+(.+?)\s*\[([A-Z]{1,3})-([A-Z]{2})(?:-(\d+|At Large))?\]`)

var bioguideRe = regexp.MustCompile(`^[A-Z][0-9]{6}$`)

// parseSponsor parses a sponsor string. Markers such as "*" (original
// cosponsor) and "(Private Legislation)" are ignored. The raw string is kept
// as the name when it does not follow the usual grammar.
func parseSponsor(raw, href string, role model.SponsorRole) (model.Sponsor, bool) {
	raw = collapse(strings.ReplaceAll(raw, "(Private Legislation)", ""))
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "*"))
	if raw == "" {
		return model.Sponsor{}, false
	}

	s := model.Sponsor{Role: role, BioguideID: bioguideFromHref(href)}
	m := sponsorRe.FindStringSubmatch(raw)
	if m == nil {
		s.Name = raw
		return s, true
	}
	s.Title = m[1]
	s.Name = m[2]
	s.Party = m[3]
	s.State = m[4]
	s.District = m[5]
	return s, true
}

func bioguideFromHref(href string) string {
	if href == "" {
		return ""
	}
	id := path.Base(strings.TrimRight(strings.SplitN(href, "?", 2)[0], "/"))
	if bioguideRe.MatchString(id) {
		return id
	}
	return ""
}
