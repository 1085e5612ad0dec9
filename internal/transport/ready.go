package transport

import (
	"errors"
	"time"

	"github.com/up202104595/tdmamesh/internal/logger"
)

// ErrNetworkNotReady is returned by WaitUntilReady once every attempt
// has been exhausted.
var ErrNetworkNotReady = errors.New("transport: network not ready")

// WaitUntilReady probes peer up to attempts times, sleeping delay
// between tries, until a Probe send succeeds. UDP sends to an
// unreachable host frequently succeed at the socket layer (the
// failure, if any, surfaces as an ICMP-triggered error on a later
// call), so this is a best-effort local-interface check, not a
// reachability guarantee.
func WaitUntilReady(tr Transport, peer uint8, attempts int, delay time.Duration, lgr logger.Logger) error {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := tr.Probe(peer); err == nil {
			return nil
		} else {
			lastErr = err
			lgr.Debug("network readiness probe failed",
				logger.F("attempt", i+1),
				logger.F("peer", peer),
				logger.F("err", err),
			)
		}
		time.Sleep(delay)
	}
	if lastErr != nil {
		return errors.Join(ErrNetworkNotReady, lastErr)
	}
	return ErrNetworkNotReady
}
