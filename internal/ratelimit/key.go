package ratelimit

import "strings"

// KeyFor builds a limiter key for an endpoint and client address.
func KeyFor(endpoint, clientIP string) string {
	endpoint = strings.TrimSpace(endpoint)
	clientIP = strings.TrimSpace(clientIP)
	if endpoint == "" || clientIP == "" {
		return ""
	}
	return "ep:" + endpoint + ":ip:" + clientIP
}
