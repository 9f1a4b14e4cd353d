package feed

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
)

func testDecoder() *Decoder {
	return NewDecoder(log.New(io.Discard, "", 0))
}

const tradeJSON = `{"mint":"M1","signature":"sig1","is_buy":true,"sol_amount":10,"token_amount":100,"timestamp":1704067200000,"user":"trader1"}`

func assertTradeDecoded(t *testing.T, dec *Decoder, payload []byte) {
	t.Helper()

	ev, err := dec.Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.Mint != "M1" || ev.Signature != "sig1" {
		t.Errorf("Bad event: mint=%q signature=%q", ev.Mint, ev.Signature)
	}
	if !ev.IsBuy {
		t.Error("Expected buy side")
	}
	if !ev.SolAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("SolAmount mismatch: %s", ev.SolAmount)
	}
	if !ev.TokenAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("TokenAmount mismatch: %s", ev.TokenAmount)
	}
}

func TestDecoder_DirectJSON(t *testing.T) {
	dec := testDecoder()
	assertTradeDecoded(t, dec, []byte(tradeJSON))
	if dec.Failures() != 0 {
		t.Errorf("Expected no failures, got %d", dec.Failures())
	}
}

func TestDecoder_QuoteWrapped(t *testing.T) {
	// The payload is itself a JSON string containing the JSON document.
	wrapped, err := json.Marshal(tradeJSON)
	if err != nil {
		t.Fatal(err)
	}
	assertTradeDecoded(t, testDecoder(), wrapped)
}

func TestDecoder_DoubleQuoteWrapped(t *testing.T) {
	once, _ := json.Marshal(tradeJSON)
	twice, _ := json.Marshal(string(once))
	assertTradeDecoded(t, testDecoder(), twice)
}

func TestDecoder_Base64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(tradeJSON))
	assertTradeDecoded(t, testDecoder(), []byte(encoded))
}

func TestDecoder_EscapedQuotes(t *testing.T) {
	escaped := strconv.Quote(tradeJSON)
	// Strip the surrounding quotes but keep the inner escaping: this is
	// the shape seen when an intermediary unwraps the string but leaves
	// the escapes behind.
	escaped = escaped[1 : len(escaped)-1]
	assertTradeDecoded(t, testDecoder(), []byte(escaped))
}

func TestDecoder_TruncationRecovery(t *testing.T) {
	// Trailing garbage after the last closing brace: recovered by
	// truncating at the last plausible delimiter.
	assertTradeDecoded(t, testDecoder(), []byte(tradeJSON+`,"tra`))
}

func TestDecoder_FallbackOrder(t *testing.T) {
	// A direct JSON document must decode via the direct strategy even
	// if its bytes could pass other heuristics: failures stay at zero
	// and the parse is exact.
	dec := testDecoder()
	assertTradeDecoded(t, dec, []byte(tradeJSON))

	// A quote-wrapped document must not be mistaken for base64.
	wrapped, _ := json.Marshal(tradeJSON)
	assertTradeDecoded(t, dec, wrapped)

	if dec.Failures() != 0 {
		t.Errorf("Expected no failures, got %d", dec.Failures())
	}
}

func TestDecoder_Undecodable(t *testing.T) {
	dec := testDecoder()

	for i := 0; i < decodeFailureSample+3; i++ {
		if _, err := dec.Decode([]byte("not a trade at all")); err == nil {
			t.Fatal("Expected decode error")
		}
	}
	if dec.Failures() != decodeFailureSample+3 {
		t.Errorf("Expected %d failures, got %d", decodeFailureSample+3, dec.Failures())
	}
}

func TestLooksLikeBase64(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"aGVsbG8=", true},
		{"aGVsbG9vbw==", true},
		{"abcd", true},
		{"abc", false},              // length not multiple of 4
		{`{"a":1}`, false},          // structured data
		{`"abcdabcd"`, false},       // quoted
		{"abc!", false},             // outside alphabet
		{"ab=c", false},             // padding before end
		{"", false},
	}
	for _, c := range cases {
		if got := looksLikeBase64(c.in); got != c.want {
			t.Errorf("looksLikeBase64(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
