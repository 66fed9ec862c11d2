package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/yourusername/pointledger/pkg/pointledger"
)

// ErrKeyExtractionFailed is returned when a request carries no usable budget key
var ErrKeyExtractionFailed = errors.New("failed to extract budget key")

// KeyExtractor derives the ledger key a request is charged to
// (e.g. client IP, API key, session).
type KeyExtractor func(*http.Request) (string, error)

func extractionFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrKeyExtractionFailed, fmt.Sprintf(format, args...))
}

func remoteIP(r *http.Request) (string, error) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port in some edge cases
		ip = r.RemoteAddr
	}
	if ip == "" {
		return "", extractionFailed("empty IP address")
	}
	return "ip:" + ip, nil
}

// ExtractIP charges the client's address as seen in r.RemoteAddr.
func ExtractIP() KeyExtractor {
	return remoteIP
}

// ExtractIPWithProxy charges the first X-Forwarded-For address, then
// X-Real-IP, then RemoteAddr. Use it behind a trusted reverse proxy only.
func ExtractIPWithProxy() KeyExtractor {
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return "ip:" + ip, nil
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return "ip:" + xri, nil
		}
		return remoteIP(r)
	}
}

// ExtractHeader charges the value of a request header, e.g. "X-API-Key".
func ExtractHeader(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		value := r.Header.Get(name)
		if value == "" {
			return "", extractionFailed("header %s not found or empty", name)
		}
		return "header:" + name + ":" + value, nil
	}
}

// ExtractBearer charges the token of an "Authorization: Bearer <token>" header.
func ExtractBearer() KeyExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			return "", extractionFailed("Authorization header not found")
		}
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return "", extractionFailed("invalid Authorization header format")
		}
		if token == "" {
			return "", extractionFailed("empty bearer token")
		}
		return "bearer:" + token, nil
	}
}

// ExtractCookie charges the value of a cookie, e.g. "session_id".
func ExtractCookie(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(name)
		if err != nil {
			return "", extractionFailed("cookie %s not found: %v", name, err)
		}
		if cookie.Value == "" {
			return "", extractionFailed("cookie %s has empty value", name)
		}
		return "cookie:" + name + ":" + cookie.Value, nil
	}
}

// ExtractStatic charges every request to one shared key.
func ExtractStatic(key string) KeyExtractor {
	return func(*http.Request) (string, error) {
		if key == "" {
			return "", extractionFailed("static key is empty")
		}
		return key, nil
	}
}

// ExtractComposite tries extractors in order and uses the first key found.
//
// Example:
//
//	extractor := ExtractComposite(
//	    ExtractHeader("X-API-Key"),
//	    ExtractIPWithProxy(),  // Fallback to IP if no API key
//	)
func ExtractComposite(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) (string, error) {
		if len(extractors) == 0 {
			return "", extractionFailed("no extractors provided")
		}
		var errs []error
		for _, extract := range extractors {
			key, err := extract(r)
			if err == nil && key != "" {
				return key, nil
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		return "", extractionFailed("all extractors failed: %v", errors.Join(errs...))
	}
}

// ParseKeyExtractor builds a KeyExtractor from its configuration string:
//
//	"ip", "ip-proxy", "bearer",
//	"header:X-API-Key", "cookie:session_id", "static:global",
//	"header:X-API-Key|ip-proxy" (composite, tried left to right)
func ParseKeyExtractor(config string) (KeyExtractor, error) {
	if strings.Contains(config, "|") {
		var extractors []KeyExtractor
		for _, part := range strings.Split(config, "|") {
			e, err := ParseKeyExtractor(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			extractors = append(extractors, e)
		}
		return ExtractComposite(extractors...), nil
	}

	kind, arg, hasArg := strings.Cut(config, ":")
	needArg := func(build func(string) KeyExtractor) (KeyExtractor, error) {
		if !hasArg || arg == "" {
			return nil, fmt.Errorf("%w: %s extractor requires format '%s:value'", pointledger.ErrInvalidConfig, kind, kind)
		}
		return build(arg), nil
	}

	switch kind {
	case "", "ip":
		return ExtractIP(), nil
	case "ip-proxy":
		return ExtractIPWithProxy(), nil
	case "bearer":
		return ExtractBearer(), nil
	case "header":
		return needArg(ExtractHeader)
	case "cookie":
		return needArg(ExtractCookie)
	case "static":
		return needArg(ExtractStatic)
	default:
		return nil, fmt.Errorf("%w: unknown key extractor type: %s", pointledger.ErrInvalidConfig, kind)
	}
}
