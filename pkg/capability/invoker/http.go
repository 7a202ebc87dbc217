package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
)

// Prometheus metrics for capability invocations.
var (
	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_capability_invocations_total",
			Help: "Total capability invocations by outcome",
		},
		[]string{"capability", "side_effect", "outcome"},
	)

	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ausweis_capability_invocation_duration_seconds",
			Help:    "Capability invocation duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"capability"},
	)
)

func init() {
	prometheus.MustRegister(invocationsTotal, invocationDuration)
}

const (
	// DefaultTimeout bounds a single platform request.
	DefaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a platform response is read.
	maxResponseSize = 4 * 1024 * 1024
)

var pathPlaceholder = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// HTTPInvoker invokes capabilities against an HTTP admin API. Path
// placeholders in the descriptor's binding are filled from the bound
// arguments; for GET requests the remaining arguments become query
// parameters, otherwise they are sent as a JSON body.
type HTTPInvoker struct {
	base   *url.URL
	client *http.Client
	tokens TokenSource
	logger *slog.Logger
}

// Options configures an HTTPInvoker.
type Options struct {
	// BaseURL is the platform admin API root, e.g. http://traction:8032.
	BaseURL string

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	// Tokens supplies bearer tokens. Nil means unauthenticated requests.
	Tokens TokenSource

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client

	Logger *slog.Logger
}

// NewHTTP creates an HTTPInvoker for the given platform endpoint.
func NewHTTP(opts Options) (*HTTPInvoker, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing platform base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("platform base URL %q must be absolute", opts.BaseURL)
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPInvoker{
		base:   base,
		client: client,
		tokens: opts.Tokens,
		logger: logger,
	}, nil
}

// Invoke validates the arguments, issues at most one HTTP request, and
// classifies the result. An invalid proposal never reaches the network.
func (i *HTTPInvoker) Invoke(ctx context.Context, d *capability.Descriptor, args json.RawMessage) (result Result) {
	if err := d.ValidateArguments(args); err != nil {
		result = Result{Outcome: api.OutcomeValidationError, Message: err.Message}
		invocationsTotal.WithLabelValues(d.Name, string(d.SideEffect), string(result.Outcome)).Inc()
		return result
	}

	start := time.Now()

	// A panic past this point must not take the session down with it.
	// Nothing may or may not have been sent, so classify like a missing
	// response.
	defer func() {
		if rec := recover(); rec != nil {
			i.logger.Error("capability invocation panicked",
				"capability", d.Name,
				"panic", rec,
			)
			result = Result{
				Outcome: classify(d.SideEffect),
				Message: fmt.Sprintf("internal error invoking %s", d.Name),
			}
		}
		invocationsTotal.WithLabelValues(d.Name, string(d.SideEffect), string(result.Outcome)).Inc()
		invocationDuration.WithLabelValues(d.Name).Observe(time.Since(start).Seconds())
	}()

	req, err := i.buildRequest(ctx, d, args)
	if err != nil {
		return Result{Outcome: api.OutcomeValidationError, Message: err.Error()}
	}

	if i.tokens != nil {
		token, err := i.tokens.Token(ctx)
		if err != nil {
			// No request was sent yet, so this is recoverable even for
			// mutating capabilities.
			return Result{
				Outcome: api.OutcomeTransportError,
				Message: "obtaining bearer token: " + err.Error(),
			}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := i.client.Do(req)
	if err != nil {
		i.logger.Warn("capability transport failure",
			"capability", d.Name,
			"side_effect", string(d.SideEffect),
			"error", err,
		)
		return Result{Outcome: classify(d.SideEffect), Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		// The request reached the platform but the response was lost.
		return Result{
			Outcome: classify(d.SideEffect),
			Message: "reading response: " + err.Error(),
		}
	}

	payload := responsePayload(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{
			Outcome: api.OutcomeRemoteError,
			Payload: payload,
			Code:    strconv.Itoa(resp.StatusCode),
			Message: http.StatusText(resp.StatusCode),
		}
	}

	return Result{Outcome: api.OutcomeSuccess, Payload: payload}
}

// buildRequest assembles the HTTP request: placeholders from the binding
// path are filled from the arguments, the rest travel as query parameters
// for GET requests or as a JSON body otherwise.
func (i *HTTPInvoker) buildRequest(ctx context.Context, d *capability.Descriptor, args json.RawMessage) (*http.Request, error) {
	values := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &values); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
	}

	path := d.HTTP.Path
	var missing string
	path = pathPlaceholder.ReplaceAllStringFunc(path, func(m string) string {
		name := strings.Trim(m, "{}")
		v, ok := values[name]
		if !ok {
			missing = name
			return m
		}
		delete(values, name)
		return url.PathEscape(argString(v))
	})
	if missing != "" {
		return nil, fmt.Errorf("capability %s: missing path parameter %s", d.Name, missing)
	}

	u := *i.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	method := strings.ToUpper(d.HTTP.Method)

	var body io.Reader
	if method == http.MethodGet {
		if len(values) > 0 {
			q := u.Query()
			for name, v := range values {
				q.Set(name, argString(v))
			}
			u.RawQuery = q.Encode()
		}
	} else {
		raw, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// argString renders an argument value for use in a path or query string.
func argString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}

// responsePayload normalizes a response body into JSON: valid JSON passes
// through, anything else is wrapped as a JSON string, empty bodies
// become nil.
func responsePayload(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return trimmed
	}
	wrapped, _ := json.Marshal(string(trimmed))
	return wrapped
}
