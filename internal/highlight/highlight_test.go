package highlight

import "testing"

func TestSegments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Segment
	}{
		{
			name: "empty",
			in:   "",
			want: nil,
		},
		{
			name: "no repeats",
			in:   "春夏秋冬",
			want: []Segment{
				{Text: "春夏秋冬"},
			},
		},
		{
			name: "doubled character",
			in:   "所以以这样",
			want: []Segment{
				{Text: "所"},
				{Text: "以以", Dup: true},
				{Text: "这样"},
			},
		},
		{
			name: "pair repeat wraps as one span",
			in:   "学习学习很重要",
			want: []Segment{
				{Text: "学习学习", Dup: true},
				{Text: "很重要"},
			},
		},
		{
			name: "pair repeat wins over doubled character",
			in:   "aaaa",
			want: []Segment{
				{Text: "aaaa", Dup: true},
			},
		},
		{
			name: "odd run leaves a plain remainder",
			in:   "aaa",
			want: []Segment{
				{Text: "aa", Dup: true},
				{Text: "a"},
			},
		},
		{
			name: "doubled then pair",
			in:   "好好学习学习",
			want: []Segment{
				{Text: "好好", Dup: true},
				{Text: "学习学习", Dup: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segments(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Segments(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("segment %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSegmentsRoundTrip(t *testing.T) {
	inputs := []string{"", "a", "哈哈哈哈哈", "没有重复", "ababcdcd", "xyyz"}
	for _, in := range inputs {
		var joined string
		for _, seg := range Segments(in) {
			joined += seg.Text
		}
		if joined != in {
			t.Errorf("segments of %q reassemble to %q", in, joined)
		}
	}
}

func TestHTML(t *testing.T) {
	t.Run("wraps duplicates", func(t *testing.T) {
		got := HTML("所以以")
		want := `所<span class="dup">以以</span>`
		if got != want {
			t.Fatalf("HTML = %q, want %q", got, want)
		}
	})

	t.Run("escapes before scanning", func(t *testing.T) {
		// "<<" escapes to "&lt;&lt;" whose characters are no longer
		// adjacent repeats, so no span is produced.
		got := HTML("<<")
		want := "&lt;&lt;"
		if got != want {
			t.Fatalf("HTML = %q, want %q", got, want)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := HTML(""); got != "" {
			t.Fatalf("HTML(\"\") = %q", got)
		}
	})
}
