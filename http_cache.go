package apiclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// cacheDirectives is the subset of Cache-Control the client honors when the
// caller does not force a TTL.
type cacheDirectives struct {
	noStore bool
	noCache bool
	maxAge  *time.Duration
}

func parseCacheControl(header string) cacheDirectives {
	var directives cacheDirectives
	if header == "" {
		return directives
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if name, value, found := strings.Cut(part, "="); found {
			if strings.TrimSpace(name) != "max-age" {
				continue
			}
			value = strings.Trim(strings.TrimSpace(value), "\"")
			if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
				maxAge := time.Duration(seconds) * time.Second
				directives.maxAge = &maxAge
			}
			continue
		}

		switch part {
		case "no-store":
			directives.noStore = true
		case "no-cache":
			directives.noCache = true
		}
	}

	return directives
}

// ttlForResponse derives the storage TTL for a response. The caller's TTL
// wins when set; otherwise a server max-age is honored. The boolean is false
// when the server forbids storing the response.
func ttlForResponse(header http.Header, callerTTL time.Duration) (time.Duration, bool) {
	directives := parseCacheControl(header.Get("Cache-Control"))
	if directives.noStore {
		return 0, false
	}

	if callerTTL > 0 {
		return callerTTL, true
	}
	if directives.maxAge != nil && *directives.maxAge > 0 {
		return *directives.maxAge, true
	}
	return 0, false
}
