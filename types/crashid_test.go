package types

import (
	"strings"
	"testing"
	"time"
)

func TestCreateCrashID_Format(t *testing.T) {
	ts := time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC)

	for _, throttle := range []int{0, 1} {
		id := CreateCrashID(ts, throttle)

		if len(id) != 36 {
			t.Fatalf("len(id) = %d, want 36", len(id))
		}
		if !ValidateCrashID(id, true) {
			t.Errorf("ValidateCrashID(%q, true) = false, want true", id)
		}
		if got := ThrottleFromCrashID(id); got != throttle {
			t.Errorf("ThrottleFromCrashID(%q) = %d, want %d", id, got, throttle)
		}
		if got := DateFromCrashID(id); got != "20260825" {
			t.Errorf("DateFromCrashID(%q) = %q, want %q", id, got, "20260825")
		}
	}
}

func TestCreateCrashID_Distinct(t *testing.T) {
	ts := time.Now().UTC()
	a := CreateCrashID(ts, 0)
	b := CreateCrashID(ts, 0)
	if a == b {
		t.Errorf("two minted ids are equal: %q", a)
	}
}

func TestValidateCrashID(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		strict bool
		want   bool
	}{
		{
			name:   "valid defer id",
			id:     "de1bb258-cbbf-4589-a673-34f800160918",
			strict: true,
			want:   true,
		},
		{
			name:   "valid accept id",
			id:     "de1bb258-cbbf-4589-a673-34f000160918",
			strict: true,
			want:   true,
		},
		{
			name:   "throttle char out of range strict",
			id:     "de1bb258-cbbf-4589-a673-34f400160918",
			strict: true,
			want:   false,
		},
		{
			name:   "throttle char out of range lax",
			id:     "de1bb258-cbbf-4589-a673-34f400160918",
			strict: false,
			want:   true,
		},
		{
			name:   "uppercase hex rejected",
			id:     "DE1BB258-cbbf-4589-a673-34f800160918",
			strict: true,
			want:   false,
		},
		{
			name:   "too short",
			id:     "de1bb258-cbbf-4589-a673",
			strict: true,
			want:   false,
		},
		{
			name:   "empty",
			id:     "",
			strict: true,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateCrashID(tt.id, tt.strict); got != tt.want {
				t.Errorf("ValidateCrashID(%q, %v) = %v, want %v", tt.id, tt.strict, got, tt.want)
			}
		})
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	// validate(mint(t, d)) holds for every throttle result and a spread
	// of dates.
	dates := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Now().UTC(),
	}
	for _, ts := range dates {
		for _, throttle := range []int{0, 1} {
			id := CreateCrashID(ts, throttle)
			if !ValidateCrashID(id, true) {
				t.Errorf("round trip failed for ts=%s throttle=%d: %q", ts, throttle, id)
			}
		}
	}
}

func TestSanitizeDumpName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", "upload_file_minidump", "upload_file_minidump"},
		{"strips punctuation", "upload_file_minidump-browser!", "upload_file_minidumpbrowser"},
		{"strips path separators", "../../etc/passwd", "etcpasswd"},
		{"strips unicode", "dumpéname", "dumpname"},
		{"empty", "", ""},
		{"truncates to 30", strings.Repeat("a", 40), strings.Repeat("a", 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeDumpName(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeDumpName(%q) = %q, want %q", tt.in, got, tt.want)
			}
			// Idempotence: sanitizing a sanitized name is a no-op.
			if again := SanitizeDumpName(got); again != got {
				t.Errorf("SanitizeDumpName not idempotent: %q -> %q", got, again)
			}
			if len(got) > 30 {
				t.Errorf("len(SanitizeDumpName(%q)) = %d, want <= 30", tt.in, len(got))
			}
		})
	}
}
