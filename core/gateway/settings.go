package gateway

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shrekd/shrekd/core/share"
)

const (
	headerMaxAccess  = "Max-Access"
	headerExpiryAt   = "Expiry-Timestamp"
	headerExpireIn   = "Expire-In"
	headerSlugLength = "Slug-Length"
	headerCustomSlug = "Custom-Slug"
	headerChecksum   = "Data-Checksum"
)

// reservedSlugs collide with fixed routes.
var reservedSlugs = map[string]bool{"health": true}

// headerError is a malformed settings header.
type headerError struct {
	Header string
	Msg    string
}

func (e *headerError) Error() string {
	return fmt.Sprintf("header %s: %s", e.Header, e.Msg)
}

func settingsFromHeaders(h http.Header) (share.Settings, error) {
	var out share.Settings
	if v, ok := header(h, headerMaxAccess); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return out, &headerError{Header: headerMaxAccess, Msg: "expected a positive integer"}
		}
		n32 := uint32(n)
		out.MaxAccesses = &n32
	}
	if v, ok := header(h, headerExpiryAt); ok {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return out, &headerError{Header: headerExpiryAt, Msg: "expected unix seconds"}
		}
		at := time.Unix(ts, 0).UTC()
		out.ExpiryAt = &at
	}
	if v, ok := header(h, headerExpireIn); ok {
		secs, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return out, &headerError{Header: headerExpireIn, Msg: "expected seconds"}
		}
		out.ExpireIn = &secs
	}
	if out.ExpiryAt != nil && out.ExpireIn != nil {
		return out, &headerError{Header: headerExpireIn, Msg: "cannot be combined with " + headerExpiryAt}
	}
	if v, ok := header(h, headerSlugLength); ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return out, &headerError{Header: headerSlugLength, Msg: "expected an integer up to 255"}
		}
		out.SlugLength = uint8(n)
	}
	if v, ok := header(h, headerCustomSlug); ok {
		if reservedSlugs[strings.ToLower(v)] {
			return out, &headerError{Header: headerCustomSlug, Msg: fmt.Sprintf("%q is reserved", v)}
		}
		out.CustomSlug = v
	}
	if v, ok := header(h, headerChecksum); ok {
		out.Checksum = v
	}
	return out, nil
}

func header(h http.Header, key string) (string, bool) {
	v := strings.TrimSpace(h.Get(key))
	return v, v != ""
}
