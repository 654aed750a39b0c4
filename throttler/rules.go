package throttler

import (
	"regexp"
	"strings"
	"time"
)

// MozillaProducts is the default product allow-list. These must match
// the ProductName annotation of incoming crash reports.
var MozillaProducts = []string{
	"Fenix",
	"Firefox",
	"Focus",
	"MozillaVPN",
	"ReferenceBrowser",
	"Thunderbird",
}

// AllProducts accepts crash reports for any product.
var AllProducts = []string{}

// AcceptAll is a rule set that accepts every crash report.
func AcceptAll() []Rule {
	return []Rule{
		mustRule("accept_everything", WholeCrash, Always{}, Terminal(Accept)),
	}
}

// buildIDRe matches well-formed BuildID annotations: YYYYMMDDhhmmss.
var buildIDRe = regexp.MustCompile(`^20\d{12}$`)

// oldBuildIDAge is how old a build can be before its crash reports are
// rejected outright.
const oldBuildIDAge = 730 * 24 * time.Hour

// matchOldBuildID matches builds more than two years old.
func matchOldBuildID(_ *Throttler, annotations map[string]string) bool {
	buildID := annotations["BuildID"]
	if !buildIDRe.MatchString(buildID) {
		return false
	}
	buildDate, err := time.Parse("20060102", buildID[:8])
	if err != nil {
		return false
	}
	return buildDate.Before(time.Now().Add(-oldBuildIDAge))
}

// matchHangIDAndBrowser matches the browser side of multi-submission
// hang crashes. A missing ProcessType counts as "browser".
func matchHangIDAndBrowser(_ *Throttler, annotations map[string]string) bool {
	if _, ok := annotations["HangID"]; !ok {
		return false
	}
	processType, ok := annotations["ProcessType"]
	return !ok || processType == "browser"
}

// infobarVersionPrefixes are the Firefox desktop versions affected by
// the infobar bug.
var infobarVersionPrefixes = []string{
	"52.", "53.", "54.", "55.", "56.", "57.", "58.", "59.",
}

// matchInfobarTrue matches crashes submitted through the broken infobar
// in certain versions of Firefox desktop.
func matchInfobarTrue(_ *Throttler, annotations map[string]string) bool {
	product := annotations["ProductName"]
	infobar := annotations["SubmittedFromInfobar"]
	version := annotations["Version"]
	buildID := annotations["BuildID"]

	if product == "" || infobar == "" || version == "" || buildID == "" {
		return false
	}

	if product != "Firefox" || infobar != "true" {
		return false
	}
	matched := false
	for _, prefix := range infobarVersionPrefixes {
		if strings.HasPrefix(version, prefix) {
			matched = true
			break
		}
	}
	return matched && buildID < "20171226"
}

// matchB2G matches B2G crash reports when B2G is not a supported
// product. B2G clients do not handle rejection well and retry forever,
// so these are fake-accepted.
func matchB2G(t *Throttler, annotations map[string]string) bool {
	for _, product := range t.Products() {
		if product == "B2G" {
			return false
		}
	}
	return strings.ToLower(annotations["ProductName"]) == "b2g"
}

// matchUnsupportedProduct matches products outside the allow-list.
// Does nothing when the allow-list is empty.
func matchUnsupportedProduct(t *Throttler, annotations map[string]string) bool {
	products := t.Products()
	if len(products) == 0 {
		return false
	}
	productName := annotations["ProductName"]
	for _, product := range products {
		if productName == product {
			return false
		}
	}
	return true
}

// DefaultRules returns the standard rule set for the crash collector.
// Order is significant: rules are evaluated top to bottom.
func DefaultRules() []Rule {
	return []Rule{
		// If it's got an old build id, reject it now
		mustRule("has_old_buildid", WholeCrash,
			Predicate{Fn: matchOldBuildID}, Terminal(Reject)),
		// Reject browser side of all multi-submission hang crashes
		mustRule("has_hangid_and_browser", WholeCrash,
			Predicate{Fn: matchHangIDAndBrowser}, Terminal(Reject)),
		// Reject infobar=true crashes for certain versions of Firefox desktop
		mustRule("infobar_is_true", WholeCrash,
			Predicate{Fn: matchInfobarTrue}, Terminal(Reject)),
		// Fake-accept B2G crash reports; B2G retries rejection ad infinitum
		mustRule("b2g", WholeCrash,
			Predicate{Fn: matchB2G}, Terminal(FakeAccept)),
		// Reject crash reports for unsupported products; no-op when the
		// allow-list is empty
		mustRule("unsupported_product", WholeCrash,
			Predicate{Fn: matchUnsupportedProduct}, Terminal(Reject)),
		// Accept crash reports submitted through about:crashes
		mustRule("throttleable_0", "Throttleable",
			Equals{Value: "0"}, Terminal(Accept)),
		// Accept crash reports that have a comment
		mustRule("has_comments", "Comments",
			Always{}, Terminal(Accept)),
		// Accept gpu crashes; we don't get many and sampling would reduce
		// them to a handful that's hard to do things with
		mustRule("is_gpu", "ProcessType",
			Equals{Value: "gpu"}, Terminal(Accept)),
		// Sample ShutDownKill reports at 10%; they're not really *crashes*
		// and we get an awful lot of them
		mustRule("is_shutdownkill", "ipc_channel_error",
			Equals{Value: "ShutDownKill"}, Sampled(10, Continue, Reject)),
		// Accept crash reports in the aurora, beta, and esr channels
		mustRule("is_alpha_beta_esr", "ReleaseChannel",
			OneOf{Values: []string{"aurora", "beta", "esr"}}, Terminal(Accept)),
		// Accept crash reports in the nightly channels
		mustRule("is_nightly", "ReleaseChannel",
			StartsWith{Prefix: "nightly"}, Terminal(Accept)),
		// Accept 10%, reject 90% of Firefox desktop release channel
		mustRule("is_firefox_desktop", WholeCrash,
			AllOf{Conditions: []Condition{
				KeyEquals{Key: "ProductName", Value: "Firefox"},
				KeyEquals{Key: "ReleaseChannel", Value: "release"},
			}}, Sampled(10, Accept, Reject)),
		// Accept everything else
		mustRule("accept_everything", WholeCrash,
			Always{}, Terminal(Accept)),
	}
}

// RuleSetByName resolves a rule set name from configuration.
// Known names are "mozilla" (DefaultRules) and "accept_all".
func RuleSetByName(name string) ([]Rule, bool) {
	switch name {
	case "", "mozilla":
		return DefaultRules(), true
	case "accept_all":
		return AcceptAll(), true
	default:
		return nil, false
	}
}

// ProductsByName resolves a product allow-list name from configuration.
// Known names are "mozilla" (MozillaProducts) and "all" (no filtering).
func ProductsByName(name string) ([]string, bool) {
	switch name {
	case "", "mozilla":
		return MozillaProducts, true
	case "all":
		return AllProducts, true
	default:
		return nil, false
	}
}
