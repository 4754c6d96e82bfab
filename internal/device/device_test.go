// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package device_test

import (
	"testing"

	"codeberg.org/oliverandrich/go-magiclink/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		ua       string
		expected device.Kind
	}{
		{"empty", "", device.Other},
		{
			"iPhone Safari",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			device.Mobile,
		},
		{
			"Android Chrome",
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			device.Mobile,
		},
		{
			"iPad",
			"Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
			device.Mobile,
		},
		{"native app http client", "okhttp/4.12.0", device.Mobile},
		{"iOS app", "MyApp/1.0 CFNetwork/1410.0.3 Darwin/22.6.0", device.Mobile},
		{
			"macOS Safari",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
			device.Other,
		},
		{
			"Windows Chrome",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			device.Other,
		},
		{
			"Linux Firefox",
			"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			device.Other,
		},
		{"curl", "curl/8.4.0", device.Other},
	}

	var c device.UserAgentClassifier
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.ua))
		})
	}
}
