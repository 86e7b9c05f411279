package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/calebsyring/critic/internal/models"
)

// Outcome is the result of one probe. A timeout or transport-level
// failure is a normal outcome with Responded false, not an error: it
// represents "monitor is unreachable" and feeds the state machine the
// same way a failed assertion would.
type Outcome struct {
	Responded       bool
	StatusCode      int
	Latency         time.Duration
	AssertionPassed bool
}

// Prober executes a single check against a monitor's target URL.
type Prober interface {
	// Probe issues one HTTP request bounded by the monitor's timeout.
	// The returned error is reserved for programming errors such as a
	// malformed URL that slipped past upstream validation; ordinary
	// network failure is reported through the Outcome.
	Probe(ctx context.Context, m models.Monitor) (Outcome, error)
}

// maxAssertionBody caps how much of a response body is read when
// evaluating a body_contains assertion, so a misbehaving endpoint cannot
// tie up a check worker's memory.
const maxAssertionBody = 1 << 20

// HTTPProber probes monitors over HTTP using a shared client.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober around client. A nil client gets a
// default one that follows redirects; per-monitor timeouts are enforced
// through the request context, so the client itself carries none.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProber{client: client}
}

// Probe implements Prober. HEAD is sufficient when no body assertion is
// configured; a body_contains assertion forces GET, since HEAD responses
// carry no body.
func (p *HTTPProber) Probe(ctx context.Context, m models.Monitor) (Outcome, error) {
	method := http.MethodHead
	if m.Assertions.BodyContains != "" {
		method = http.MethodGet
	}

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, m.URL, nil)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "failed to build request for %s", m.Key())
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		// Unreachable, timed out, TLS failure and friends all land here.
		return Outcome{}, nil
	}
	defer resp.Body.Close()

	out := Outcome{
		Responded:  true,
		StatusCode: resp.StatusCode,
		Latency:    latency,
	}
	out.AssertionPassed = p.evaluateAssertions(m, resp)
	return out, nil
}

// evaluateAssertions applies the monitor's configured assertions to a
// response. With no assertions configured, any response at all passes.
func (p *HTTPProber) evaluateAssertions(m models.Monitor, resp *http.Response) bool {
	if m.Assertions.StatusCode != 0 && resp.StatusCode != m.Assertions.StatusCode {
		return false
	}
	if m.Assertions.BodyContains != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssertionBody))
		if err != nil {
			return false
		}
		if !strings.Contains(string(body), m.Assertions.BodyContains) {
			return false
		}
	}
	return true
}
