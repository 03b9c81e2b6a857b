package core

import (
	"strings"
)

// SessionIdCookie is the only cookie the portal and platform domains use
// to identify a logged-in session.
const SessionIdCookie = "ASP.NET_SessionId"

type cookie struct {
	name  string
	value string
}

// Session tracks cookies per authentication domain. A single file
// resolution walks up to three domains (portal, platform, resource), each
// issuing its own session cookie along the way.
type Session struct {
	cookies map[string][]cookie
}

func NewSession() *Session {
	return &Session{cookies: map[string][]cookie{}}
}

// Merge folds Set-Cookie header values into the session for the given
// host. Cookies are deduplicated by name, last value wins.
func (s *Session) Merge(host string, setCookies []string) {
	for _, raw := range setCookies {
		pair, _, _ := strings.Cut(raw, ";")
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s.set(host, name, strings.TrimSpace(value))
	}
}

// MergeFiltered is Merge restricted to a single cookie name. The platform
// hop issues a pile of tracking cookies alongside its session id and only
// the session id matters.
func (s *Session) MergeFiltered(host string, setCookies []string, name string) {
	for _, raw := range setCookies {
		pair, _, _ := strings.Cut(raw, ";")
		gotName, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(gotName) != name {
			continue
		}
		s.set(host, name, strings.TrimSpace(value))
	}
}

func (s *Session) set(host, name, value string) {
	list := s.cookies[host]
	for i := range list {
		if list[i].name == name {
			list[i].value = value
			return
		}
	}
	s.cookies[host] = append(list, cookie{name: name, value: value})
}

// Header renders the Cookie header value for a host, joining name=value
// pairs with "; " in insertion order.
func (s *Session) Header(host string) string {
	list := s.cookies[host]
	if len(list) == 0 {
		return ""
	}
	pairs := make([]string, len(list))
	for i, c := range list {
		pairs[i] = c.name + "=" + c.value
	}
	return strings.Join(pairs, "; ")
}

func (s *Session) Get(host, name string) (string, bool) {
	for _, c := range s.cookies[host] {
		if c.name == name {
			return c.value, true
		}
	}
	return "", false
}

// Clone copies the session so a file resolution can accumulate platform
// and resource cookies without touching sibling resolutions.
func (s *Session) Clone() *Session {
	out := NewSession()
	for host, list := range s.cookies {
		out.cookies[host] = append([]cookie(nil), list...)
	}
	return out
}
