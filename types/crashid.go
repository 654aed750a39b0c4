package types

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Crash ids have the following format:
//
//	de1bb258-cbbf-4589-a673-34f800160918
//	                             ^^^^^^^
//	                             ||____|
//	                             |  yymmdd
//	                             |
//	                             throttle result
//
// The first 29 characters come from a random UUIDv4 string with hyphens
// preserved; the last 7 characters encode the throttle result and the
// two-digit-year date of minting.

// crashIDRe asserts the shape of a crash id: UUID-like hex groups with
// the last 6 characters being the YYMMDD date.
var crashIDRe = regexp.MustCompile(
	`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{6}[0-9]{6}$`,
)

// CreateCrashID generates a crash id embedding the throttle result and
// the date of timestamp. The throttle result should be 0 (accept) or
// 1 (defer).
func CreateCrashID(timestamp time.Time, throttleResult int) string {
	id := uuid.New().String()
	timestamp = timestamp.UTC()

	var b strings.Builder
	b.WriteString(id[:len(id)-7])
	b.WriteByte(byte('0' + throttleResult))
	b.WriteString(timestamp.Format("060102"))
	return b.String()
}

// ValidateCrashID returns whether id is a valid crash id. With strict
// set, the throttle character must be "0" or "1".
func ValidateCrashID(id string, strict bool) bool {
	if !crashIDRe.MatchString(id) {
		return false
	}
	if strict {
		c := id[len(id)-7]
		if c != '0' && c != '1' {
			return false
		}
	}
	return true
}

// DateFromCrashID returns the YYYYMMDD date embedded in the crash id.
// The caller must have validated the id first.
func DateFromCrashID(id string) string {
	return "20" + id[len(id)-6:]
}

// ThrottleFromCrashID returns the throttle result embedded in the crash id.
// The caller must have validated the id first.
func ThrottleFromCrashID(id string) int {
	return int(id[len(id)-7] - '0')
}

// dump names can only contain these characters
const alphaNumericUnderscore = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_"

// maxDumpNameLen caps sanitized dump names.
const maxDumpNameLen = 30

// SanitizeDumpName reduces a dump name to ASCII alphanumerics and
// underscores and truncates it to 30 characters. Idempotent.
func SanitizeDumpName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 128 && strings.ContainsRune(alphaNumericUnderscore, r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > maxDumpNameLen {
		s = s[:maxDumpNameLen]
	}
	return s
}
