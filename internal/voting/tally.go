package voting

import (
	"fmt"
	"sort"
	"strings"
)

// Mode controls how responses are compared.
type Mode string

const (
	// ModeExact compares responses verbatim.
	ModeExact Mode = "exact"
	// ModeNormalized lowercases and collapses whitespace before comparing.
	ModeNormalized Mode = "normalized"
	// ModeSemantic is currently the same as ModeNormalized.
	ModeSemantic Mode = "semantic"
)

// ParseMode returns the mode named by s.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeExact, ModeNormalized, ModeSemantic:
		return m, nil
	case "":
		return ModeNormalized, nil
	default:
		return "", fmt.Errorf("unknown voting mode %q", s)
	}
}

// Normalize returns the comparison key of response under mode.
func Normalize(response string, mode Mode) string {
	if mode == ModeExact {
		return response
	}
	return strings.Join(strings.Fields(strings.ToLower(response)), " ")
}

// Tally groups responses by their comparison key.
type Tally struct {
	// Responses holds each distinct key once, in first-seen order.
	Responses []string
	// Counts maps a key to the number of responses that produced it.
	Counts map[string]int
	// Raw maps a key to the first raw response that produced it.
	Raw map[string]string
	// Winner is the key that reached K, or empty.
	Winner string
}

// TallyVotes groups responses under mode and picks the first-to-K winner.
func TallyVotes(responses []string, k int, mode Mode) Tally {
	t := Tally{
		Counts: make(map[string]int),
		Raw:    make(map[string]string),
	}
	for _, r := range responses {
		key := Normalize(r, mode)
		if _, seen := t.Counts[key]; !seen {
			t.Responses = append(t.Responses, key)
			t.Raw[key] = r
		}
		t.Counts[key]++
	}
	t.Winner, _ = FirstToKWinner(t, k)
	return t
}

// FirstToKWinner returns the key whose count reached k. If several keys
// reached k the one with the highest count wins, ties broken by the smallest
// key, so the result does not depend on arrival order.
func FirstToKWinner(t Tally, k int) (string, bool) {
	k = max(k, 1)
	var qualified []string
	for _, key := range t.Responses {
		if t.Counts[key] >= k {
			qualified = append(qualified, key)
		}
	}
	if len(qualified) == 0 {
		return "", false
	}
	return plurality(qualified, t.Counts), true
}

// Plurality returns the key with the highest count, ties broken by the
// smallest key. It returns false for an empty tally.
func Plurality(t Tally) (string, bool) {
	if len(t.Responses) == 0 {
		return "", false
	}
	return plurality(t.Responses, t.Counts), true
}

func plurality(keys []string, counts map[string]int) string {
	sorted := append([]string(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool {
		ci, cj := counts[sorted[i]], counts[sorted[j]]
		if ci != cj {
			return ci > cj
		}
		return sorted[i] < sorted[j]
	})
	return sorted[0]
}
