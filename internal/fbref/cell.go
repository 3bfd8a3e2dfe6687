package fbref

import "strings"

// Cell is one scraped table cell: either a plain scalar or a (display, target) pair
// taken from the first anchor inside the cell.
type Cell struct {
	Text   string
	Target string
	linked bool
}

func Scalar(v string) Cell { return Cell{Text: v} }

func Linked(display, target string) Cell {
	return Cell{Text: display, Target: target, linked: true}
}

// IsLinked reports whether the cell carries a non-empty link target.
func (c Cell) IsLinked() bool { return c.linked && strings.TrimSpace(c.Target) != "" }

// Resolve returns the link target when present, else the display text.
func (c Cell) Resolve() string {
	if c.IsLinked() {
		return c.Target
	}
	return c.Text
}

// IDFromTarget returns the second-to-last "/" segment of a link path:
// "/en/players/e342ad68/Mohamed-Salah" -> "e342ad68".
func IDFromTarget(target string) string {
	target = strings.TrimSpace(target)
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	parts := strings.Split(target, "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[len(parts)-2])
}
