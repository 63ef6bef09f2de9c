package platform

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Platform identifies a supported media source.
type Platform string

const (
	TikTok    Platform = "tiktok"
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	YouTube   Platform = "youtube"
	Twitter   Platform = "twitter"
)

// MaxURLLength bounds inbound links before any parsing work.
const MaxURLLength = 2048

var (
	// ErrInvalid marks links that fail structural or safety validation.
	ErrInvalid = errors.New("invalid url")
	// ErrUnsupported marks hosts outside the allow-list.
	ErrUnsupported = errors.New("unsupported platform")
)

// allowedDomains maps allow-listed base domains to their platform.
// Subdomains of a base domain are accepted as well.
var allowedDomains = map[string]Platform{
	"tiktok.com":    TikTok,
	"vm.tiktok.com": TikTok,
	"vt.tiktok.com": TikTok,
	"facebook.com":  Facebook,
	"fb.watch":      Facebook,
	"instagram.com": Instagram,
	"youtube.com":   YouTube,
	"youtu.be":      YouTube,
	"twitter.com":   Twitter,
	"x.com":         Twitter,
}

// Link is a validated, normalized media URL.
type Link struct {
	Raw        string
	Normalized string
	Host       string
	Platform   Platform
}

// Key returns the cache key for this link.
func (l *Link) Key() string {
	return l.Normalized
}

// Candidate reports whether the text mentions an allow-listed domain.
// It is a cheap pre-filter over message text; Parse does the real checks.
func Candidate(text string) bool {
	lower := strings.ToLower(text)
	for domain := range allowedDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

// Validator checks inbound URLs before any download work happens.
// LookupIP may be replaced in tests to avoid real DNS traffic.
type Validator struct {
	LookupIP func(host string) ([]net.IP, error)
}

func NewValidator() *Validator {
	return &Validator{LookupIP: net.LookupIP}
}

// Parse validates a raw link and returns its normalized form. The checks
// run strictly before any fetch: scheme and userinfo rules, host sanity,
// the platform allow-list, and only then a DNS probe rejecting hosts that
// resolve to private address space.
func (v *Validator) Parse(raw string) (*Link, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty link", ErrInvalid)
	}
	if len(trimmed) > MaxURLLength {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalid, MaxURLLength)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q is not allowed", ErrInvalid, u.Scheme)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: userinfo is not allowed", ErrInvalid)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalid)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, fmt.Errorf("%w: internal host", ErrInvalid)
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil, fmt.Errorf("%w: ip literal host", ErrInvalid)
	}

	p, ok := matchPlatform(host)
	if !ok {
		return nil, ErrUnsupported
	}

	if v.resolvesToPrivate(host) {
		return nil, fmt.Errorf("%w: host resolves to a private address", ErrInvalid)
	}

	u.Scheme = scheme
	u.Fragment = ""
	u.RawFragment = ""

	return &Link{
		Raw:        raw,
		Normalized: u.String(),
		Host:       host,
		Platform:   p,
	}, nil
}

func matchPlatform(host string) (Platform, bool) {
	for domain, p := range allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return p, true
		}
	}
	return "", false
}

// resolvesToPrivate guards allow-listed names pointed at internal
// addresses. Resolution failures are not treated as private: the download
// step will surface them on its own.
func (v *Validator) resolvesToPrivate(host string) bool {
	ips, err := v.LookupIP(host)
	if err != nil {
		return false
	}
	for _, ip := range ips {
		if privateIP(ip) {
			return true
		}
	}
	return false
}

func privateIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}
