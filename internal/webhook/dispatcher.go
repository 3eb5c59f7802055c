package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/loaninneed/attribution/internal/model"
)

var ErrEndpointOpen = fmt.Errorf("webhook endpoint circuit open")

// Dispatcher posts conversion events to partner webhook endpoints. Each
// endpoint gets its own circuit breaker so one dead partner cannot stall
// the projector.
type Dispatcher struct {
	client        *http.Client
	maxAttempts   int
	failThreshold int
	openFor       time.Duration

	mu       sync.Mutex
	breakers map[string]*breaker
}

func NewDispatcher(timeoutMs, maxAttempts, failThreshold, openForMs int) *Dispatcher {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}
	if maxAttempts < 1 {
		maxAttempts = 2
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	if openForMs <= 0 {
		openForMs = 15000
	}
	return &Dispatcher{
		client:        &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		maxAttempts:   maxAttempts,
		failThreshold: failThreshold,
		openFor:       time.Duration(openForMs) * time.Millisecond,
		breakers:      make(map[string]*breaker),
	}
}

func (d *Dispatcher) breakerFor(url string) *breaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.breakers[url]
	if !ok {
		b = newBreaker(d.failThreshold, d.openFor)
		d.breakers[url] = b
	}
	return b
}

// NotifyConversion delivers the event to the endpoint, retrying up to
// maxAttempts. Delivery is best-effort; callers log failures and move on.
func (d *Dispatcher) NotifyConversion(ctx context.Context, url string, env model.Envelope) error {
	var last error
	for i := 0; i < d.maxAttempts; i++ {
		if err := d.tryOnce(ctx, url, env); err == nil {
			return nil
		} else {
			last = err
		}
	}
	return last
}

func (d *Dispatcher) tryOnce(ctx context.Context, url string, env model.Envelope) error {
	br := d.breakerFor(url)
	if !br.TryAcquire() {
		return ErrEndpointOpen
	}

	if err := d.post(ctx, url, env); err != nil {
		br.OnFailure()
		return err
	}

	br.OnSuccess()
	return nil
}

func (d *Dispatcher) post(ctx context.Context, url string, env model.Envelope) error {
	b, _ := json.Marshal(env)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := d.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("webhook url=%s status=%d", url, res.StatusCode)
	}

	return nil
}
