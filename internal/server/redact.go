// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import "net/url"

// redactedParams are query parameters that grant access and must not be logged.
var redactedParams = []string{"token", "requestId"}

// redactURI hides sensitive query parameters of a request URI.
func redactURI(uri string) string {
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return uri
	}
	q := u.Query()
	changed := false
	for _, name := range redactedParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return uri
	}
	u.RawQuery = q.Encode()
	return u.String()
}
