// Package session turns a raw Cookie header into discrete cookies that can
// seed an HTTP client or a browser.
package session

import "strings"

// Cookie is a single name/value pair scoped to a domain.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// ParseCookies splits a raw "a=1; b=2" header into cookies bound to domain.
// Segments without "=" keep an empty value. Empty segments are skipped, so
// an empty header yields no cookies. Only the first "=" separates name and
// value.
func ParseCookies(raw, domain string) []Cookie {
	segments := strings.Split(raw, ";")
	cookies := make([]Cookie, 0, len(segments))
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		name, value, _ := strings.Cut(segment, "=")
		cookies = append(cookies, Cookie{
			Name:   strings.TrimSpace(name),
			Value:  strings.TrimSpace(value),
			Domain: domain,
		})
	}
	return cookies
}
