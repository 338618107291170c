// Package commandwriter applies control decisions to the outside world: the
// dual-sink time-series command writer and the live State Cache update.
// Fan-out to the two sinks is grounded on the teacher's multi-receiver
// publisher (internal/routing) — one goroutine per sink, a per-sink
// timeout, independent error handling — reduced from an arbitrary
// receiver map to the fixed primary/secondary pair spec.md §4.3 calls for.
package commandwriter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/automatacontrols/bms-core/internal/ctlerr"
	"github.com/automatacontrols/bms-core/internal/statecache"
	"github.com/automatacontrols/bms-core/pkg/metrics"
)

// DefaultSinkTimeout is the per-sink write deadline (§5: "Command write per
// sink: 10s, both sinks raced, success of either fulfills the write").
const DefaultSinkTimeout = 10 * time.Second

// Command is one control command destined for the time-series sinks and,
// for update-state calls, the State Cache.
type Command struct {
	EquipmentID string
	LocationID  string
	CommandType string // e.g. "firingRate", "unitEnable", "EMERGENCY_SHUTDOWN"
	Source      string
	UserID      string
	UserName    string
	Value       any // numeric, bool, JSON-able object, or string
	Status      string
	Details     string
	Time        time.Time
}

// Config configures a Client.
type Config struct {
	SinkURLs    []string // write_lp endpoints; at least one required, two expected
	Database    string
	HTTPClient  *http.Client
	SinkTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = DefaultSinkTimeout
	}
	return c
}

// Client writes commands to the configured sinks and updates the State
// Cache. One Client is constructed by the orchestrator and shared by every
// worker.
type Client struct {
	cfg   Config
	cache *statecache.Cache
	m     *metrics.BusinessMetrics
}

// New creates a commandwriter Client. cache and m may be nil in tests that
// don't exercise UpdateState or metrics.
func New(cfg Config, cache *statecache.Cache, m *metrics.BusinessMetrics) *Client {
	return &Client{cfg: cfg.withDefaults(), cache: cache, m: m}
}

// SinkResult is one sink's outcome from a WriteCommand call.
type SinkResult struct {
	URL     string
	Success bool
	Status  int // HTTP status, 0 if the request never completed
	Err     error
}

// Result aggregates a WriteCommand call across all configured sinks.
type Result struct {
	Sinks []SinkResult
}

// SuccessCount returns how many sinks accepted the write.
func (r Result) SuccessCount() int {
	n := 0
	for _, s := range r.Sinks {
		if s.Success {
			n++
		}
	}
	return n
}

// allPermanent reports whether every failed sink failed with a 4xx.
func (r Result) allPermanent() bool {
	sawFailure := false
	for _, s := range r.Sinks {
		if s.Success {
			continue
		}
		sawFailure = true
		if s.Status < 400 || s.Status >= 500 {
			return false
		}
	}
	return sawFailure
}

// WriteCommand fans the command out to every configured sink in parallel.
// Returns nil if at least one sink accepted the write. If all sinks
// rejected it, returns a *ctlerr.Error: Permanent if every rejection was a
// 4xx, Transient otherwise.
func (c *Client) WriteCommand(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Time.IsZero() {
		cmd.Time = time.Now().UTC()
	}
	line := encodeLine(cmd)

	results := make([]SinkResult, len(c.cfg.SinkURLs))
	var wg sync.WaitGroup
	for i, url := range c.cfg.SinkURLs {
		wg.Add(1)
		go c.writeToSink(ctx, url, line, i, results, &wg)
	}
	wg.Wait()

	result := Result{Sinks: results}
	if result.SuccessCount() > 0 {
		return result, nil
	}

	if result.allPermanent() {
		return result, ctlerr.New(ctlerr.Permanent, fmt.Errorf("all %d sinks rejected command for %s", len(results), cmd.EquipmentID))
	}
	return result, ctlerr.New(ctlerr.Transient, fmt.Errorf("all %d sinks unreachable for %s", len(results), cmd.EquipmentID))
}

func (c *Client) writeToSink(parentCtx context.Context, url, line string, index int, results []SinkResult, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			results[index] = SinkResult{URL: url, Success: false, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.SinkTimeout)
	defer cancel()

	start := time.Now()
	status, err := c.postLine(ctx, url, line)
	duration := time.Since(start)

	success := err == nil && status >= 200 && status < 300
	results[index] = SinkResult{URL: url, Success: success, Status: status, Err: err}

	if c.m != nil {
		outcome := "success"
		if !success {
			outcome = "failure"
		}
		c.m.RecordCommandWrite(sinkLabel(url), outcome, duration.Seconds())
	}
}

func (c *Client) postLine(ctx context.Context, url, line string) (int, error) {
	endpoint := fmt.Sprintf("%s/write_lp?db=%s&precision=nanosecond", url, c.cfg.Database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(line)))
	if err != nil {
		return 0, fmt.Errorf("build write_lp request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("write_lp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("write_lp returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// UpdateState updates the State Cache's view of an equipment with a 24h
// TTL and records the modification timestamp, per spec.md §4.3's
// update-state operation.
func (c *Client) UpdateState(ctx context.Context, equipmentID string, partialState map[string]any, modifiedBy string) error {
	return c.cache.SetState(ctx, equipmentID, partialState, modifiedBy, "")
}

func sinkLabel(url string) string {
	if idx := strings.Index(url, "://"); idx != -1 {
		rest := url[idx+3:]
		if end := strings.IndexByte(rest, '/'); end != -1 {
			return rest[:end]
		}
		return rest
	}
	return url
}

const measurement = "commands"

// encodeLine renders a Command as one line-protocol point, applying
// spec.md §4.3's normative field-value encoding.
func encodeLine(cmd Command) string {
	var sb strings.Builder
	sb.WriteString(measurement)

	writeTag(&sb, "equipment_id", cmd.EquipmentID)
	writeTag(&sb, "location_id", cmd.LocationID)
	writeTag(&sb, "command_type", cmd.CommandType)
	writeTag(&sb, "source", cmd.Source)
	writeTag(&sb, "user_id", cmd.UserID)
	writeTag(&sb, "user_name", cmd.UserName)

	sb.WriteByte(' ')
	fields := encodeFields(cmd)
	sb.WriteString(strings.Join(fields, ","))

	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatInt(cmd.Time.UnixNano(), 10))

	return sb.String()
}

func writeTag(sb *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	sb.WriteByte(',')
	sb.WriteString(key)
	sb.WriteByte('=')
	sb.WriteString(escapeTag(value))
}

func escapeTag(s string) string {
	s = strings.ReplaceAll(s, ",", `\,`)
	s = strings.ReplaceAll(s, " ", `\ `)
	return s
}

func escapeStringValue(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

func encodeFields(cmd Command) []string {
	value, stringValue, hasStringValue := encodeValue(cmd.Value, cmd.Time)

	fields := []string{fmt.Sprintf("value=%s", formatFloat(value))}
	if hasStringValue {
		fields = append(fields, fmt.Sprintf(`string_value="%s"`, escapeStringValue(stringValue)))
	}
	if cmd.Status != "" {
		fields = append(fields, fmt.Sprintf(`status="%s"`, escapeStringValue(cmd.Status)))
	}
	if cmd.Details != "" {
		fields = append(fields, fmt.Sprintf(`details="%s"`, escapeStringValue(cmd.Details)))
	}
	return fields
}

// encodeValue applies the four field-value encoding rules from spec.md
// §4.3: numeric, boolean, object, and numeric-parseable-string each get
// their own value/string_value pairing. A plain non-numeric string falls
// back to the object rule's placeholder so `value` (required by the sink)
// is always present.
func encodeValue(v any, ts time.Time) (value float64, stringValue string, hasStringValue bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, "true", true
		}
		return 0, "false", true
	case float64:
		return t, "", false
	case float32:
		return float64(t), "", false
	case int:
		return float64(t), "", false
	case int64:
		return float64(t), "", false
	case string:
		if parsed, err := strconv.ParseFloat(t, 64); err == nil {
			return parsed, t, true
		}
		return placeholder(ts), t, true
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", v))
		}
		return placeholder(ts), string(encoded), true
	}
}

func placeholder(ts time.Time) float64 {
	return float64(ts.UnixNano() % 1_000_000)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
