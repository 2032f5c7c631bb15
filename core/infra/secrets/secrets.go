// Package secrets keeps credentials embedded in connection URLs out of logs.
package secrets

import (
	"net/url"
	"strings"
)

const redacted = "<redacted>"

var sensitiveParams = []string{"password", "passwd", "token", "secret", "key"}

// ContainsCredentials reports whether raw carries userinfo or a sensitive
// query parameter.
func ContainsCredentials(raw string) bool {
	_, changed := redactURL(raw)
	return changed
}

// RedactURL masks credentials in a redis:// or nats:// style URL. A lone
// username is treated as a token, which is how NATS token auth is written.
// Input that does not parse is fully redacted.
func RedactURL(raw string) string {
	out, _ := redactURL(raw)
	return out
}

func redactURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted, true
	}
	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		} else {
			u.User = url.User(redacted)
		}
		changed = true
	}
	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if isSensitive(name) {
				q.Set(name, redacted)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}
	if !changed {
		return raw, false
	}
	out, err := url.PathUnescape(u.String())
	if err != nil {
		return u.String(), true
	}
	return out, true
}

func isSensitive(param string) bool {
	param = strings.ToLower(param)
	for _, s := range sensitiveParams {
		if strings.Contains(param, s) {
			return true
		}
	}
	return false
}
