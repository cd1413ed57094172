package server

import "github.com/localrivet/wilduri"

// matchURITemplate reports whether uri matches the {var}-bearing pattern a
// resource template was registered under, grounded on the teacher's own
// matchURITemplate helper (server/messaging.go) built on wilduri.
func matchURITemplate(pattern, uri string) (string, bool) {
	tmpl, err := wilduri.New(pattern)
	if err != nil {
		return "", false
	}
	values, matched := tmpl.Match(uri)
	if !matched || values == nil {
		return "", false
	}
	return uri, true
}
