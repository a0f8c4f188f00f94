// Package token turns raw scanner payloads into catalog sites.
//
// Tokens printed on site QR codes carry the site name and a point value
// joined by an underscore or comma, e.g. "Patan Durbar Square_20". Matching
// against the catalog is by normalized name, with substring containment as a
// compatibility fallback for older codes whose printed names drifted from the
// catalog entries.
package token

import (
	"strings"

	"github.com/scanquest/internal/domain"
)

// Decoded is the (name, points) pair parsed from a raw payload
type Decoded struct {
	Name   string
	Points int64
}

// Decode splits a raw payload on the last '_' or ',' whose suffix is all
// digits. Payloads without such a separator decode as a bare name worth
// zero points. Decode never fails; garbage in is a name that will not
// resolve against the catalog.
func Decode(raw string) Decoded {
	raw = strings.TrimSpace(raw)
	for i := len(raw) - 1; i > 0; i-- {
		if raw[i] != '_' && raw[i] != ',' {
			continue
		}
		points, ok := parsePoints(raw[i+1:])
		if !ok {
			continue
		}
		return Decoded{Name: strings.TrimSpace(raw[:i]), Points: points}
	}
	return Decoded{Name: raw}
}

func parsePoints(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int64(r-'0')
	}
	return n, true
}

// Normalize lower-cases and trims a name for comparison
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CleanSiteName strips a trailing point suffix ("_20" or ",20") from a
// catalog site name. Some catalogs store the full printed token as the name.
func CleanSiteName(name string) string {
	d := Decode(name)
	return d.Name
}

// Result is the tagged outcome of resolving a payload: either a recognized
// catalog site or an unrecognized token. Unrecognized is an expected
// rejection, not an error.
type Result struct {
	Recognized bool
	Site       *domain.Site
	Points     int64
	Name       string
	Raw        string
}

// Resolve matches a raw payload against the catalog: exact normalized-name
// equality first, then substring containment. Points come from the catalog
// entry when it sets a value, otherwise from the token suffix.
func Resolve(sites []domain.Site, raw string) Result {
	decoded := Decode(raw)
	want := Normalize(decoded.Name)
	res := Result{Raw: raw, Name: decoded.Name, Points: decoded.Points}
	if want == "" {
		return res
	}

	for i := range sites {
		if Normalize(CleanSiteName(sites[i].Name)) == want {
			return resolved(res, &sites[i])
		}
	}
	for i := range sites {
		if strings.Contains(Normalize(sites[i].Name), want) {
			return resolved(res, &sites[i])
		}
	}
	return res
}

func resolved(res Result, site *domain.Site) Result {
	res.Recognized = true
	res.Site = site
	if site.Points > 0 {
		res.Points = site.Points
	}
	return res
}
