package classify

import (
	"net/url"
	"strings"

	"github.com/jobpulse/harvester/internal/model"
)

// domainSignature maps a hosted listing-system domain to its tag and a rule
// for pulling the employer identifier out of the URL path.
type domainSignature struct {
	system    model.ListingSystem
	hosts     []string
	idSegment int // path segment index holding the employer identifier, -1 if none
}

var domainSignatures = []domainSignature{
	{system: model.SystemGreenhouse, hosts: []string{"boards.greenhouse.io", "job-boards.greenhouse.io", "boards-api.greenhouse.io"}, idSegment: 0},
	{system: model.SystemLever, hosts: []string{"jobs.lever.co", "jobs.eu.lever.co"}, idSegment: 0},
	{system: model.SystemAshby, hosts: []string{"jobs.ashbyhq.com"}, idSegment: 0},
	{system: model.SystemSmartRecruiters, hosts: []string{"careers.smartrecruiters.com", "jobs.smartrecruiters.com"}, idSegment: 0},
	{system: model.SystemWorkable, hosts: []string{"apply.workable.com", "jobs.workable.com"}, idSegment: 0},
}

// bodySignatures are substrings whose presence in a career page body is
// evidence that a given system serves it: characteristic markup selectors,
// embedded API endpoints, and brand keywords.
var bodySignatures = map[model.ListingSystem][]string{
	model.SystemGreenhouse: {
		"boards.greenhouse.io",
		"boards-api.greenhouse.io",
		"grnhse_app",
		"greenhouse.io/embed/job_board",
		"gh_jid=",
		"data-gh-",
	},
	model.SystemLever: {
		"jobs.lever.co",
		"api.lever.co/v0/postings",
		"lever-jobs",
		"posting-apply",
		"lever-source",
	},
	model.SystemAshby: {
		"jobs.ashbyhq.com",
		"api.ashbyhq.com",
		"ashby_jid",
		"ashby-job-posting",
		"_ashby",
	},
	model.SystemSmartRecruiters: {
		"smartrecruiters.com",
		"api.smartrecruiters.com/v1/companies",
		"smartrecruiters-widget",
		"data-sr-",
	},
	model.SystemWorkable: {
		"apply.workable.com",
		"workable.com/api/",
		"whr-",
		"workable-application-form",
	},
}

// matchDomain tries the URL host/path against known hosted-domain shapes.
// Returns the matched system, the extracted identifier, and ok.
func matchDomain(careerURL string) (model.ListingSystem, string, bool) {
	u, err := url.Parse(careerURL)
	if err != nil {
		return model.SystemUnknown, "", false
	}
	host := strings.ToLower(u.Hostname())

	for _, sig := range domainSignatures {
		for _, h := range sig.hosts {
			if host != h {
				continue
			}
			id := ""
			if sig.idSegment >= 0 {
				segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
				if len(segments) > sig.idSegment {
					id = segments[sig.idSegment]
				}
			}
			return sig.system, id, true
		}
	}
	return model.SystemUnknown, "", false
}

// scoreSignatures counts body-signature hits per system and returns the best
// scoring system with its hit count. Pure function; zero hits returns
// SystemUnknown, 0.
func scoreSignatures(html string) (model.ListingSystem, int) {
	lower := strings.ToLower(html)

	best := model.SystemUnknown
	bestHits := 0
	for system, sigs := range bodySignatures {
		hits := 0
		for _, s := range sigs {
			if strings.Contains(lower, strings.ToLower(s)) {
				hits++
			}
		}
		if hits > bestHits || (hits == bestHits && hits > 0 && system < best) {
			best = system
			bestHits = hits
		}
	}
	if bestHits == 0 {
		return model.SystemUnknown, 0
	}
	return best, bestHits
}
