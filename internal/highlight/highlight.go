// Package highlight marks accidental character repetitions in dictated text.
//
// Speech input tends to produce doubled syllables ("的的", "所以以") when the
// recogniser stutters. The scanner walks the text left to right and wraps
// adjacent repeats so the display layer can render them in a warning style:
// a two-character pair followed by the same pair is wrapped as one four
// character span, a single doubled character as one two character span.
// Longer runs are covered greedily by successive spans.
package highlight

import (
	"html"
	"strings"
)

// Segment is a run of text that is either plain or part of a detected
// repetition. Consecutive segments concatenate to the original input.
type Segment struct {
	Text string
	Dup  bool
}

// Segments splits s into plain and duplicate runs. The scan is greedy and
// left to right: at each position a pair-repeat (abab) wins over a single
// doubled character (aa), and matched spans are not rescanned.
func Segments(s string) []Segment {
	if s == "" {
		return nil
	}

	runes := []rune(s)
	var segs []Segment
	var plain []rune

	flush := func() {
		if len(plain) > 0 {
			segs = append(segs, Segment{Text: string(plain)})
			plain = plain[:0]
		}
	}

	for i := 0; i < len(runes); {
		if i+4 <= len(runes) &&
			runes[i] == runes[i+2] && runes[i+1] == runes[i+3] {
			flush()
			segs = append(segs, Segment{Text: string(runes[i : i+4]), Dup: true})
			i += 4
			continue
		}
		if i+2 <= len(runes) && runes[i] == runes[i+1] {
			flush()
			segs = append(segs, Segment{Text: string(runes[i : i+2]), Dup: true})
			i += 2
			continue
		}
		plain = append(plain, runes[i])
		i++
	}
	flush()
	return segs
}

// HTML escapes s and wraps detected repetitions in
// <span class="dup">…</span>. Escaping happens before the scan, so entity
// sequences produced by escaping take part in repeat detection exactly like
// any other characters.
func HTML(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	for _, seg := range Segments(html.EscapeString(s)) {
		if seg.Dup {
			b.WriteString(`<span class="dup">`)
			b.WriteString(seg.Text)
			b.WriteString(`</span>`)
		} else {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}
