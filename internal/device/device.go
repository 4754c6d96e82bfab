// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package device classifies clients by their user agent.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Kind is the coarse device class used for redirect decisions.
type Kind string

const (
	Mobile Kind = "mobile"
	Other  Kind = "other"
)

// Classifier decides what kind of device sent a request.
type Classifier interface {
	Classify(userAgent string) Kind
}

// UserAgentClassifier is a best-effort heuristic over the User-Agent header.
type UserAgentClassifier struct{}

// mobileHints catch agents the parser does not flag, such as app webviews.
var mobileHints = []string{"android", "iphone", "ipad", "ipod", "mobile", "okhttp", "cfnetwork"}

// Classify returns Mobile for phones and tablets and Other for everything else.
func (UserAgentClassifier) Classify(userAgent string) Kind {
	if userAgent == "" {
		return Other
	}
	if useragent.New(userAgent).Mobile() {
		return Mobile
	}
	ua := strings.ToLower(userAgent)
	for _, hint := range mobileHints {
		if strings.Contains(ua, hint) {
			return Mobile
		}
	}
	return Other
}
