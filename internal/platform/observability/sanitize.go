package observability

import (
	"strings"
	"unicode"
)

// Rune limits for request values copied into logs, span attributes and realtime room keys.
const (
	defaultLimit = 256
	routeLimit   = 180
	methodLimit  = 10
	userIDLimit  = 64
	orderIDLimit = 64
	hostLimit    = 64
	roomLimit    = userIDLimit + len("USER_")
)

// sanitizeString drops control characters other than tab and newlines and keeps at most limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultLimit
	}
	var b strings.Builder
	b.Grow(min(len(value), limit))
	kept := 0
	for _, r := range value {
		if kept == limit {
			break
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
		kept++
	}
	return b.String()
}

// token is sanitizeString for single-token values, which additionally lose all whitespace.
func token(value string, limit int) string {
	return sanitizeString(strings.Join(strings.Fields(value), ""), limit)
}

// SanitizeRoute cleans a route pattern or path. An empty route becomes "/".
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeLimit)
}

// SanitizeMethod cleans an HTTP method and upper-cases it.
func SanitizeMethod(method string) string {
	return strings.ToUpper(token(method, methodLimit))
}

// SanitizeUserID cleans a Firebase uid for logs, spans and room keys.
func SanitizeUserID(uid string) string {
	return token(uid, userIDLimit)
}

// SanitizeOrderID cleans an order id taken from a path or payload.
func SanitizeOrderID(id string) string {
	return token(id, orderIDLimit)
}

// SanitizeRoom normalises a realtime room key so publishers and subscribers agree on it.
func SanitizeRoom(room string) string {
	return token(room, roomLimit)
}
