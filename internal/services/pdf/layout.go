package pdf

import (
	"math"
	"sort"
	"strings"
)

// LayoutParams tunes how positioned text runs are assembled into lines and
// boxes. All margins are relative to the font size of the runs involved.
type LayoutParams struct {
	// LineMargin: lines whose vertical gap is within this margin belong to
	// the same box.
	LineMargin float64 `toml:"line_margin" validate:"gte=0"`
	// CharMargin: runs on a line further apart than this start a new box.
	CharMargin float64 `toml:"char_margin" validate:"gte=0"`
	// WordMargin: runs further apart than this are separated by a space.
	WordMargin float64 `toml:"word_margin" validate:"gte=0"`
	// BoxesFlow weighs horizontal (-1) against vertical (+1) position when
	// ordering boxes.
	BoxesFlow float64 `toml:"boxes_flow" validate:"gte=-1,lte=1"`
	// DetectVertical reads columns of stacked glyphs as vertical lines,
	// right to left.
	DetectVertical bool `toml:"detect_vertical"`
}

// DefaultLayoutParams returns the layout parameters used when none are given.
func DefaultLayoutParams() LayoutParams {
	return LayoutParams{
		LineMargin:     0.5,
		CharMargin:     2.0,
		WordMargin:     0.1,
		BoxesFlow:      0.5,
		DetectVertical: true,
	}
}

// minVerticalGlyphs is the shortest glyph column read as vertical text.
const minVerticalGlyphs = 3

// line is a run of text on one baseline, or one vertical column.
type line struct {
	x0, x1 float64
	y      float64
	size   float64
	text   string
}

// box is a group of lines read as one block.
type box struct {
	x0, x1      float64
	top, bottom float64
	lines       []line
}

func (b *box) add(l line) {
	if len(b.lines) == 0 {
		b.x0, b.x1 = l.x0, l.x1
		b.top, b.bottom = l.y+l.size, l.y
	} else {
		b.x0 = math.Min(b.x0, l.x0)
		b.x1 = math.Max(b.x1, l.x1)
		b.top = math.Max(b.top, l.y+l.size)
		b.bottom = math.Min(b.bottom, l.y)
	}
	b.lines = append(b.lines, l)
}

func (b *box) text() string {
	parts := make([]string, 0, len(b.lines))
	for _, l := range b.lines {
		if t := strings.TrimSpace(l.text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// layoutText assembles the runs of one page into reading-order text.
func layoutText(runs []textRun, p LayoutParams) string {
	var boxes []*box
	if p.DetectVertical {
		var vertical []*box
		vertical, runs = extractVertical(runs, p)
		boxes = append(boxes, vertical...)
	}
	boxes = append(boxes, horizontalBoxes(runs, p)...)

	flow := math.Max(-1, math.Min(1, p.BoxesFlow))
	sort.SliceStable(boxes, func(i, j int) bool {
		ki := (1-flow)*boxes[i].x0 - (1+flow)*(boxes[i].top+boxes[i].bottom)
		kj := (1-flow)*boxes[j].x0 - (1+flow)*(boxes[j].top+boxes[j].bottom)
		return ki < kj
	})

	parts := make([]string, 0, len(boxes))
	for _, b := range boxes {
		if t := b.text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// horizontalBoxes groups runs into lines, splits lines at wide gaps, and
// stacks overlapping lines into boxes.
func horizontalBoxes(runs []textRun, p LayoutParams) []*box {
	if len(runs) == 0 {
		return nil
	}

	sorted := append([]textRun(nil), runs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	// Baselines within half a font size of each other share a line.
	var rows [][]textRun
	for _, r := range sorted {
		n := len(rows)
		if n > 0 {
			head := rows[n-1][0]
			if math.Abs(head.Y-r.Y) <= 0.5*math.Max(head.Size, r.Size) {
				rows[n-1] = append(rows[n-1], r)
				continue
			}
		}
		rows = append(rows, []textRun{r})
	}

	var segments []line
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		segments = append(segments, splitRow(row, p)...)
	}

	var boxes []*box
	for _, seg := range segments {
		var target *box
		for _, b := range boxes {
			last := b.lines[len(b.lines)-1]
			gap := last.y - seg.y - math.Max(last.size, seg.size)
			if last.y == seg.y || gap > p.LineMargin*math.Max(last.size, seg.size) {
				continue
			}
			if seg.x0 < b.x1 && seg.x1 > b.x0 {
				target = b
				break
			}
		}
		if target == nil {
			target = &box{}
			boxes = append(boxes, target)
		}
		target.add(seg)
	}
	return boxes
}

// splitRow joins the runs of one baseline, inserting spaces at word gaps and
// splitting at gaps wider than the char margin.
func splitRow(row []textRun, p LayoutParams) []line {
	var out []line
	var sb strings.Builder
	cur := line{x0: row[0].X, x1: row[0].right(), y: row[0].Y, size: row[0].Size}
	sb.WriteString(row[0].Text)

	for _, r := range row[1:] {
		size := math.Max(cur.size, r.Size)
		gap := r.X - cur.x1
		if gap > p.CharMargin*size {
			cur.text = sb.String()
			out = append(out, cur)
			sb.Reset()
			cur = line{x0: r.X, x1: r.right(), y: r.Y, size: r.Size}
			sb.WriteString(r.Text)
			continue
		}
		if gap > p.WordMargin*size {
			s := sb.String()
			if !strings.HasSuffix(s, " ") && !strings.HasPrefix(r.Text, " ") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(r.Text)
		cur.x1 = math.Max(cur.x1, r.right())
		cur.size = size
	}
	cur.text = sb.String()
	return append(out, cur)
}

// extractVertical finds columns of single glyphs stacked top to bottom at a
// shared x and returns them as boxes of vertical lines read right to left,
// together with the runs that were not consumed.
func extractVertical(runs []textRun, p LayoutParams) ([]*box, []textRun) {
	var glyphs, rest []textRun
	for _, r := range runs {
		if n := len([]rune(strings.TrimSpace(r.Text))); n == 1 && r.Size > 0 {
			glyphs = append(glyphs, r)
		} else {
			rest = append(rest, r)
		}
	}
	if len(glyphs) < minVerticalGlyphs {
		return nil, runs
	}

	sort.SliceStable(glyphs, func(i, j int) bool {
		if glyphs[i].X != glyphs[j].X {
			return glyphs[i].X < glyphs[j].X
		}
		return glyphs[i].Y > glyphs[j].Y
	})

	// Consecutive glyphs advance by about one em when written vertically;
	// wider spacing is ordinary line spacing of horizontal text.
	var columns [][]textRun
	var col []textRun
	flush := func() {
		if len(col) >= minVerticalGlyphs {
			columns = append(columns, col)
		} else {
			rest = append(rest, col...)
		}
		col = nil
	}
	for _, g := range glyphs {
		if n := len(col); n > 0 {
			prev := col[n-1]
			dy := prev.Y - g.Y
			sameX := math.Abs(prev.X-g.X) <= 0.1*prev.Size
			if !sameX || dy < 0.5*prev.Size || dy > (1+p.WordMargin)*prev.Size {
				flush()
			}
		}
		col = append(col, g)
	}
	flush()

	if len(columns) == 0 {
		return nil, runs
	}

	lines := make([]line, 0, len(columns))
	for _, c := range columns {
		var sb strings.Builder
		for _, g := range c {
			sb.WriteString(strings.TrimSpace(g.Text))
		}
		size := c[0].Size
		lines = append(lines, line{
			x0:   c[0].X,
			x1:   c[0].X + size,
			y:    c[len(c)-1].Y,
			size: c[0].Y - c[len(c)-1].Y + size,
			text: sb.String(),
		})
	}

	// Right to left; neighbouring columns within the line margin share a box.
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].x0 > lines[j].x0 })
	var boxes []*box
	for _, l := range lines {
		if n := len(boxes); n > 0 {
			b := boxes[n-1]
			prev := b.lines[len(b.lines)-1]
			em := prev.x1 - prev.x0
			overlap := l.y < prev.y+prev.size && l.y+l.size > prev.y
			if overlap && prev.x0-l.x1 <= (1+p.LineMargin)*em {
				b.add(l)
				continue
			}
		}
		b := &box{}
		b.add(l)
		boxes = append(boxes, b)
	}
	return boxes, rest
}

// rawText renders runs in stream order with newlines at line moves. It is the
// fallback when layout analysis yields nothing.
type rawText struct {
	sb strings.Builder
}

func (r *rawText) visitor() contentVisitor {
	return contentVisitor{
		onRun: func(run textRun) {
			r.sb.WriteString(run.Text)
		},
		onLineMove: r.newline,
		onEndText:  r.newline,
	}
}

func (r *rawText) newline() {
	s := r.sb.String()
	if len(s) > 0 && !strings.HasSuffix(s, "\n") {
		r.sb.WriteByte('\n')
	}
}

func (r *rawText) String() string {
	return strings.TrimSpace(r.sb.String())
}
