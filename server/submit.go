package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pithecene-io/fissure/extractor"
	"github.com/pithecene-io/fissure/metrics"
	"github.com/pithecene-io/fissure/throttler"
	"github.com/pithecene-io/fissure/types"
)

// fromCrashIDRule is reported as the matched rule when a resubmitted
// crash carries a valid id whose embedded result overrides throttling.
const fromCrashIDRule = "FROM_CRASHID"

// submittedTimestampFormat is ISO-8601 with microseconds, UTC implied.
const submittedTimestampFormat = "2006-01-02T15:04:05.000000"

// handleSubmit accepts a breakpad crash submission.
//
// The response is committed before any durable work happens; clients
// must not infer durability from a CrashID body. Responses are always
// text/plain and parsed by prefix: "CrashID=bp-<id>" on accept,
// "Discarded=rule_<name>" on throttle rejection, and
// "Discarded=malformed_<reason>" with a 400 on parse failure.
func (s *Server) handleSubmit(c echo.Context) error {
	received := time.Now().UTC()

	report, err := extractor.Extract(c.Request())
	if err != nil {
		var malformedErr *extractor.MalformedError
		if !errors.As(err, &malformedErr) {
			return err
		}
		metrics.Malformed.WithLabelValues(malformedErr.Reason).Inc()
		if malformedErr.Reason == extractor.ReasonBadGzip {
			metrics.GzippedCrash.Inc()
			metrics.BadGzippedCrash.Inc()
		}
		s.logger.Info("malformed crash report",
			zap.String("reason", malformedErr.Reason))
		return c.String(http.StatusBadRequest, "Discarded=malformed_"+malformedErr.Reason)
	}

	metrics.IncomingCrash.Inc()
	if report.PayloadCompressed {
		metrics.GzippedCrash.Inc()
		metrics.CrashSize.WithLabelValues("compressed").Observe(float64(report.PayloadSize))
	} else {
		metrics.CrashSize.WithLabelValues("uncompressed").Observe(float64(report.PayloadSize))
	}

	report.ReceivedAt = received
	report.Annotations["submitted_timestamp"] = received.Format(submittedTimestampFormat)
	report.ComputeDumpChecksums()

	result, ruleName, percent := s.throttler.Throttle(report.Annotations)

	// A resubmitted crash carries its original id, and the id carries
	// its original throttle result. Honor it rather than rolling the
	// dice twice, unless this submission was rejected outright.
	crashID := ""
	if result != throttler.Reject {
		if id, ok := report.Annotations["uuid"]; ok && types.ValidateCrashID(id, true) {
			crashID = id
			result = throttler.Result(types.ThrottleFromCrashID(id))
			ruleName = fromCrashIDRule
			percent = 100
		}
	}
	if crashID == "" {
		crashID = types.CreateCrashID(received, int(result))
	}
	report.Annotations["uuid"] = crashID
	report.CrashID = crashID

	metrics.ThrottleRule.WithLabelValues(ruleName).Inc()
	metrics.ThrottleResult.WithLabelValues(result.String()).Inc()
	s.logger.Info("crash report received",
		zap.String("crash_id", crashID),
		zap.String("rule", ruleName),
		zap.String("result", result.String()),
		zap.Int("percent", percent))

	switch result {
	case throttler.Reject:
		return c.String(http.StatusOK, "Discarded=rule_"+ruleName)
	case throttler.FakeAccept:
		return c.String(http.StatusOK, "CrashID=bp-"+crashID+"\n")
	}

	report.StripForbiddenAnnotations()
	s.mover.Enqueue(report)
	return c.String(http.StatusOK, "CrashID=bp-"+crashID+"\n")
}
