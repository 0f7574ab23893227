package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/imrishuroy/sneakerstore/internal/money"
)

// Provider metadata limits.
const (
	MaxValueLen  = 500
	MaxKeys      = 50
	reservedKeys = 10 // user_id, customer_email, discount_*, cart_id, cart_chunks
	maxChunks    = MaxKeys - reservedKeys
	maxNameLen   = 40
)

const (
	keyCart       = "cart"
	keyCartChunks = "cart_chunks"
)

var (
	ErrEnvelopeTooLarge = errors.New("cart does not fit in session metadata")
	ErrEnvelopeMissing  = errors.New("session metadata has no cart")
)

// Line is one cart line as carried through the payment provider.
type Line struct {
	ProductID  string      `json:"id"`
	Name       string      `json:"n"`
	PriceCents money.Cents `json:"p"`
	Quantity   int         `json:"q"`
	Size       string      `json:"s"`
}

// Encode writes lines into metadata. Names are truncated; consumers re-read the catalog.
func Encode(lines []Line) (map[string]string, error) {
	compact := make([]Line, len(lines))
	for i, l := range lines {
		l.Name = truncate(l.Name, maxNameLen)
		compact[i] = l
	}
	raw, err := json.Marshal(compact)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	s := string(raw)
	if len(s) <= MaxValueLen {
		return map[string]string{keyCart: s}, nil
	}

	chunks := splitRunes(s, MaxValueLen)
	n := len(chunks)
	if n > maxChunks {
		return nil, fmt.Errorf("%w: %d chunks, limit %d", ErrEnvelopeTooLarge, n, maxChunks)
	}
	out := make(map[string]string, n+1)
	for i, c := range chunks {
		out[chunkKey(i)] = c
	}
	out[keyCartChunks] = strconv.Itoa(n)
	return out, nil
}

// Decode reads cart_chunks first and falls back to the single cart value.
func Decode(meta map[string]string) ([]Line, error) {
	var raw string
	if v, ok := meta[keyCartChunks]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxChunks {
			return nil, fmt.Errorf("invalid %s %q", keyCartChunks, v)
		}
		for i := 0; i < n; i++ {
			part, ok := meta[chunkKey(i)]
			if !ok {
				return nil, fmt.Errorf("missing %s", chunkKey(i))
			}
			raw += part
		}
	} else if v, ok := meta[keyCart]; ok {
		raw = v
	} else {
		return nil, ErrEnvelopeMissing
	}

	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return lines, nil
}

// splitRunes cuts s into pieces of at most limit bytes without splitting a UTF-8 sequence.
func splitRunes(s string, limit int) []string {
	var out []string
	for start := 0; start < len(s); {
		end := start + limit
		if end >= len(s) {
			end = len(s)
		} else {
			for end > start && !utf8.RuneStart(s[end]) {
				end--
			}
			if end == start {
				end = start + limit
			}
		}
		out = append(out, s[start:end])
		start = end
	}
	return out
}

func chunkKey(i int) string { return keyCart + "_" + strconv.Itoa(i) }

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
