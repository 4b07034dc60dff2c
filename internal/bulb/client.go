// Package bulb implements the HTTP client side of the bulb wire
// protocol. Bulbs expose a small REST surface:
//
//	GET  /led                    -> {"brightness":0..1,"color":"#RRGGBB","enabled":0|1}
//	PUT  /led/on | /led/off      -> set power
//	PUT  /led/brightness/<0..1>  -> set brightness
//	PUT  /led/color/<RRGGBB>     -> set color
//
// Every failure is classified as timeout, unreachable, protocol error
// or canceled so the dispatcher can report it per address.
package bulb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/martinsuchenak/bulbs/internal/model"
)

// DefaultTimeout bounds a single request/response exchange.
const DefaultTimeout = time.Second

// maxResponseBytes caps status response bodies; bulb replies are tiny.
const maxResponseBytes = 64 << 10

// Client sends commands to bulbs. Implementations must be safe for
// concurrent use across addresses.
type Client interface {
	Status(ctx context.Context, addr model.Address) (model.DeviceState, error)
	SetPower(ctx context.Context, addr model.Address, on bool) (model.DeviceState, error)
	SetBrightness(ctx context.Context, addr model.Address, value int) (model.DeviceState, error)
	SetColor(ctx context.Context, addr model.Address, c model.RGB) (model.DeviceState, error)
	Toggle(ctx context.Context, addr model.Address) (model.DeviceState, error)
}

// Error wraps a transport or protocol failure with its classification.
type Error struct {
	Kind model.FailureKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps an error from a Client call to its failure kind.
// Unclassified errors count as protocol errors.
func Classify(err error) model.FailureKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.Canceled) {
		return model.FailCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.FailTimeout
	}
	return model.FailProtocol
}

// HTTPClient is the production Client over net/http.
type HTTPClient struct {
	hc *http.Client
}

// NewHTTPClient builds a client whose individual calls are bounded by
// timeout. A zero timeout means DefaultTimeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		hc: &http.Client{Timeout: timeout},
	}
}

// wireState is the JSON shape bulbs return from GET /led. Older
// firmware reports power as "on" instead of "enabled".
type wireState struct {
	Brightness float64 `json:"brightness"`
	Color      string  `json:"color"`
	Enabled    *int    `json:"enabled"`
	On         *int    `json:"on"`
}

func (w wireState) toState() (model.DeviceState, error) {
	st := model.DeviceState{
		Brightness: int(math.Round(w.Brightness * model.MaxBrightness)),
		UpdatedAt:  time.Now(),
	}
	switch {
	case w.Enabled != nil:
		st.Power = *w.Enabled != 0
	case w.On != nil:
		st.Power = *w.On != 0
	default:
		return st, fmt.Errorf("status response missing power field")
	}
	if st.Brightness < 0 {
		st.Brightness = 0
	}
	if st.Brightness > model.MaxBrightness {
		st.Brightness = model.MaxBrightness
	}
	if w.Color != "" {
		c, err := model.ParseRGB(w.Color)
		if err != nil {
			return st, err
		}
		st.Color = c
	}
	return st, nil
}

// Status queries the current state of the bulb at addr.
func (c *HTTPClient) Status(ctx context.Context, addr model.Address) (model.DeviceState, error) {
	body, err := c.do(ctx, http.MethodGet, addr, "/led")
	if err != nil {
		return model.DeviceState{}, err
	}

	var ws wireState
	if err := json.Unmarshal(body, &ws); err != nil {
		return model.DeviceState{}, &Error{
			Kind: model.FailProtocol,
			Err:  fmt.Errorf("decoding status from %s: %w", addr, err),
		}
	}
	st, err := ws.toState()
	if err != nil {
		return model.DeviceState{}, &Error{
			Kind: model.FailProtocol,
			Err:  fmt.Errorf("status from %s: %w", addr, err),
		}
	}
	return st, nil
}

// SetPower turns the bulb on or off and returns the device-confirmed
// state. State is re-queried rather than assumed so the caller never
// records a state the device did not report.
func (c *HTTPClient) SetPower(ctx context.Context, addr model.Address, on bool) (model.DeviceState, error) {
	path := "/led/off"
	if on {
		path = "/led/on"
	}
	if _, err := c.do(ctx, http.MethodPut, addr, path); err != nil {
		return model.DeviceState{}, err
	}
	return c.Status(ctx, addr)
}

// SetBrightness sets brightness as a 0..MaxBrightness percent and
// returns the device-confirmed state.
func (c *HTTPClient) SetBrightness(ctx context.Context, addr model.Address, value int) (model.DeviceState, error) {
	f := float64(value) / model.MaxBrightness
	path := "/led/brightness/" + strconv.FormatFloat(f, 'f', -1, 64)
	if _, err := c.do(ctx, http.MethodPut, addr, path); err != nil {
		return model.DeviceState{}, err
	}
	return c.Status(ctx, addr)
}

// SetColor sets the bulb color and returns the device-confirmed state.
func (c *HTTPClient) SetColor(ctx context.Context, addr model.Address, col model.RGB) (model.DeviceState, error) {
	if _, err := c.do(ctx, http.MethodPut, addr, "/led/color/"+col.Hex()); err != nil {
		return model.DeviceState{}, err
	}
	return c.Status(ctx, addr)
}

// Toggle flips the bulb's power based on its own current state, not on
// any other device's.
func (c *HTTPClient) Toggle(ctx context.Context, addr model.Address) (model.DeviceState, error) {
	st, err := c.Status(ctx, addr)
	if err != nil {
		return model.DeviceState{}, err
	}
	return c.SetPower(ctx, addr, !st.Power)
}

func (c *HTTPClient) do(ctx context.Context, method string, addr model.Address, path string) ([]byte, error) {
	url := "http://" + addr.HostPort() + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &Error{Kind: model.FailProtocol, Err: err}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind: model.FailProtocol,
			Err:  fmt.Errorf("%s %s: unexpected status %d", method, url, resp.StatusCode),
		}
	}
	return body, nil
}

func classifyTransport(err error) model.FailureKind {
	if errors.Is(err, context.Canceled) {
		return model.FailCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.FailTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.FailTimeout
	}
	return model.FailUnreachable
}
