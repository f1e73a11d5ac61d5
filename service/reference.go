package service

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseReference extracts the platform video id from a watch URL, a short
// link, a shorts/embed/live URL, or a bare id.
func ParseReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	if videoIDPattern.MatchString(ref) {
		return ref, nil
	}

	if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Split(strings.Trim(u.Path, "/"), "/")[0]
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "shorts", "embed", "live", "v":
				id = parts[1]
			}
		}
	default:
		return "", fmt.Errorf("%w: unsupported host %q", ErrInvalidReference, u.Hostname())
	}

	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: no video id in %q", ErrInvalidReference, ref)
	}
	return id, nil
}
