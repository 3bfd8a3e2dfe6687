package fbref

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EventColumn marks play-by-play tables, which are not statistic tables.
const EventColumn = "Event"

// RawTable is an extracted grid of cells with flattened header labels.
type RawTable struct {
	ID      string
	Caption string
	Team    string // squad id or name, set by team attribution
	Columns []string
	Rows    [][]Cell
}

func (t RawTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// IsEventTable reports whether t is a play-by-play table.
func (t RawTable) IsEventTable() bool { return t.HasColumn(EventColumn) }

// ParseDocument unwraps commented-out markup and parses the page.
// Sports-Reference sites ship many tables inside <!-- --> blocks.
func ParseDocument(html string) (*goquery.Document, error) {
	clean := strings.ReplaceAll(html, "<!--", "")
	clean = strings.ReplaceAll(clean, "-->", "")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ExtractTables reads every table of the page in document order.
func ExtractTables(r io.Reader) ([]RawTable, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	doc, err := ParseDocument(string(b))
	if err != nil {
		return nil, err
	}
	return ExtractDocument(doc), nil
}

// ExtractDocument returns all tables of doc that have a header row.
func ExtractDocument(doc *goquery.Document) []RawTable {
	out := []RawTable{}
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		if t, ok := ExtractTable(sel); ok {
			out = append(out, t)
		}
	})
	return out
}

// ExtractTable flattens the header to its innermost row and keeps text and
// href for every body cell. Footer rows are kept as trailing rows.
func ExtractTable(sel *goquery.Selection) (RawTable, bool) {
	t := RawTable{
		ID:      strings.TrimSpace(sel.AttrOr("id", "")),
		Caption: strings.TrimSpace(sel.ChildrenFiltered("caption").Text()),
	}

	header := sel.Find("thead tr").Last()
	if header.Length() == 0 {
		header = sel.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Find("th").Length() > 0 && tr.Find("td").Length() == 0
		}).First()
	}
	if header.Length() == 0 {
		return t, false
	}
	header.Find("th,td").Each(func(_ int, th *goquery.Selection) {
		label := cleanText(th.Text())
		for i := 0; i < colspan(th); i++ {
			t.Columns = append(t.Columns, label)
		}
	})
	if len(t.Columns) == 0 {
		return t, false
	}

	rows := sel.Find("tbody tr, tfoot tr")
	if rows.Length() == 0 {
		rows = sel.Find("tr").NotSelection(header)
	}
	rows.Each(func(_ int, tr *goquery.Selection) {
		if skipRow(tr) {
			return
		}
		cells := tr.Find("th,td")
		if cells.Length() == 0 {
			return
		}
		row := make([]Cell, 0, len(t.Columns))
		cells.Each(func(_ int, td *goquery.Selection) {
			c := cellOf(td)
			for i := 0; i < colspan(td); i++ {
				row = append(row, c)
			}
		})
		for len(row) < len(t.Columns) {
			row = append(row, Scalar(""))
		}
		t.Rows = append(t.Rows, row[:len(t.Columns)])
	})
	return t, true
}

func cellOf(td *goquery.Selection) Cell {
	text := cleanText(td.Text())
	a := td.Find("a[href]").First()
	if a.Length() == 0 {
		return Scalar(text)
	}
	href, _ := a.Attr("href")
	return Linked(text, strings.TrimSpace(href))
}

func colspan(sel *goquery.Selection) int {
	n, err := strconv.Atoi(strings.TrimSpace(sel.AttrOr("colspan", "1")))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// skipRow drops repeated header rows and layout spacers.
func skipRow(tr *goquery.Selection) bool {
	class := tr.AttrOr("class", "")
	for _, c := range []string{"thead", "over_header", "spacer"} {
		if strings.Contains(class, c) {
			return true
		}
	}
	return false
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DumpTablesForDebug logs table ids and header labels of a page.
func DumpTablesForDebug(logger *slog.Logger, tables []RawTable, tag string) {
	if logger == nil {
		return
	}
	for i, t := range tables {
		logger.Debug("table", "page", tag, "idx", i, "id", t.ID, "rows", len(t.Rows), "columns", strings.Join(t.Columns, "|"))
	}
}
