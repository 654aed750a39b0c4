package storage

import (
	"fmt"

	"github.com/pithecene-io/fissure/types"
)

// Object key layout. Fixed for compatibility with downstream
// processors; do not change.

// RawCrashPath returns the key for the raw-crash document. The date
// component is the crash date embedded in the id.
func RawCrashPath(crashID string) string {
	return fmt.Sprintf("v1/raw_crash/%s/%s", types.DateFromCrashID(crashID), crashID)
}

// DumpNamesPath returns the key for the dump-names manifest.
func DumpNamesPath(crashID string) string {
	return fmt.Sprintf("v1/dump_names/%s", crashID)
}

// DumpPath returns the key for a single dump. The canonical dump name
// upload_file_minidump, and the empty name, are rewritten to the
// literal "dump" at key time; the manifest keeps the original name.
func DumpPath(dumpName, crashID string) string {
	if dumpName == "" || dumpName == "upload_file_minidump" {
		dumpName = "dump"
	}
	return fmt.Sprintf("v1/%s/%s", dumpName, crashID)
}

// ProbePath returns the key for a write-verification probe object.
func ProbePath(token string) string {
	return fmt.Sprintf("test/testfile-%s.txt", token)
}
