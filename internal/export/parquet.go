package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

// SchemaFor builds a flat optional schema from the table: gw as INT32,
// numeric columns as DOUBLE, everything else as UTF-8 strings.
func SchemaFor(t fbref.Table) *parquet.Schema {
	numeric := t.NumericColumns()
	g := parquet.Group{}
	for _, c := range Columns(t) {
		switch {
		case c == fbref.ColGW:
			g[c] = parquet.Optional(parquet.Leaf(parquet.Int32Type))
		case numeric[c]:
			g[c] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		default:
			g[c] = parquet.Optional(parquet.String())
		}
	}
	return parquet.NewSchema("player_matches", g)
}

// WriteParquet writes t as Snappy-compressed Parquet.
func WriteParquet(w io.Writer, t fbref.Table) (int, error) {
	if len(t.Rows) == 0 {
		return 0, nil
	}
	schema := SchemaFor(t)
	numeric := t.NumericColumns()
	paths := schema.Columns()

	pw := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Snappy))
	rows := make([]parquet.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make(parquet.Row, len(paths))
		for i, p := range paths {
			row[i] = leafValue(p[0], r[p[0]], numeric[p[0]]).Level(0, 1, i)
			if row[i].IsNull() {
				row[i] = parquet.NullValue().Level(0, 0, i)
			}
		}
		rows = append(rows, row)
	}
	if _, err := pw.WriteRows(rows); err != nil {
		_ = pw.Close()
		return 0, fmt.Errorf("parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("parquet close: %w", err)
	}
	return len(rows), nil
}

func leafValue(col string, v fbref.Value, numeric bool) parquet.Value {
	switch {
	case col == fbref.ColGW:
		return parquet.Int32Value(int32(v.Float()))
	case numeric && v.IsMissing():
		return parquet.DoubleValue(0)
	case numeric:
		return parquet.DoubleValue(v.Float())
	case v.IsMissing():
		return parquet.NullValue()
	default:
		return parquet.ByteArrayValue([]byte(v.String()))
	}
}

// ParquetBytes is WriteParquet into memory, for upload.
func ParquetBytes(t fbref.Table) ([]byte, int, error) {
	var buf bytes.Buffer
	n, err := WriteParquet(&buf, t)
	if err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), n, nil
}
