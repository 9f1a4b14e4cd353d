package feed

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"solana-trade-feed/internal/domain"
)

// ErrUndecodable is returned when no decoding strategy produced a trade
// event. Undecodable payloads are dropped, never retried: they cannot
// succeed differently later.
var ErrUndecodable = errors.New("no decoding strategy matched payload")

// decodeFailureSample is how many decode failures are logged verbosely
// before further ones are suppressed (count only). Sustained bad input
// must not flood the log.
const decodeFailureSample = 5

// Decoder turns an opaque data frame payload into a trade event. The
// upstream serializes payloads differently depending on transport path,
// so decoding tries a fixed sequence of strategies: direct JSON, outer
// quote unwrapping, base64, and escape stripping, each with a one-shot
// truncation recovery for payloads cut mid-frame.
type Decoder struct {
	logger   *log.Logger
	failures int
}

// NewDecoder creates a Decoder. logger may be nil.
func NewDecoder(logger *log.Logger) *Decoder {
	if logger == nil {
		logger = log.Default()
	}
	return &Decoder{logger: logger}
}

// Failures returns the total number of payloads dropped as undecodable.
func (d *Decoder) Failures() int {
	return d.failures
}

// Decode applies the strategy chain and returns the first successful
// parse. Candidates are tried in fixed order, never re-ranked.
func (d *Decoder) Decode(payload []byte) (*domain.TradeEvent, error) {
	s := strings.TrimSpace(string(payload))

	// (1) The payload as direct structured data.
	if ev, ok := tryParse(s); ok {
		return ev, nil
	}

	// (2) Unwrap outer quoting: the payload was itself serialized as a
	// JSON string containing JSON. Unwrap until no further layer exists.
	unwrapped := s
	for {
		var inner string
		if err := json.Unmarshal([]byte(unwrapped), &inner); err != nil {
			break
		}
		unwrapped = inner
		if ev, ok := tryParse(unwrapped); ok {
			return ev, nil
		}
	}

	// (3) Base64, only for payloads that are pure base64 alphabet with
	// length a multiple of four and that do not already look structured.
	if looksLikeBase64(s) {
		if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
			if ev, ok := tryParse(string(raw)); ok {
				return ev, nil
			}
		}
	}

	// (4) Strip escaped quotes and backslashes from candidates that still
	// carry escape sequences.
	for _, candidate := range []string{s, unwrapped} {
		if !strings.Contains(candidate, `\`) {
			continue
		}
		unescaped := strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(candidate)
		if ev, ok := tryParse(unescaped); ok {
			return ev, nil
		}
	}

	d.failures++
	if d.failures <= decodeFailureSample {
		d.logger.Printf("Undecodable payload (%d bytes): %.120s", len(payload), s)
		if d.failures == decodeFailureSample {
			d.logger.Printf("Further decode failures will be counted but not logged")
		}
	}

	return nil, ErrUndecodable
}

// tryParse attempts a direct JSON parse, falling back once to the
// candidate truncated at its last closing brace. Feeds under load are
// observed to cut payloads mid-frame; the truncated retry recovers the
// common case where only trailing bytes are lost.
func tryParse(candidate string) (*domain.TradeEvent, bool) {
	if ev, ok := parseEvent(candidate); ok {
		return ev, true
	}

	if idx := strings.LastIndexByte(candidate, '}'); idx >= 0 && idx < len(candidate)-1 {
		if ev, ok := parseEvent(candidate[:idx+1]); ok {
			return ev, true
		}
	}

	return nil, false
}

// parseEvent parses one JSON object into a trade event. A parse counts
// as successful only if it yields an object (not a bare string/number),
// which keeps quoted payloads flowing to the unwrap strategy.
func parseEvent(candidate string) (*domain.TradeEvent, bool) {
	trimmed := strings.TrimSpace(candidate)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var ev domain.TradeEvent
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return nil, false
	}
	return &ev, true
}

// looksLikeBase64 reports whether s is plausibly a base64 document:
// pure base64 alphabet, length a multiple of four, and not something
// that already looks like structured data.
func looksLikeBase64(s string) bool {
	if len(s) == 0 || len(s)%4 != 0 {
		return false
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") || strings.HasPrefix(s, `"`) {
		return false
	}
	padding := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
			if padding {
				return false
			}
		case c == '=':
			padding = true
		default:
			return false
		}
	}
	return true
}
