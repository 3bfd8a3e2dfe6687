package fbref

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const commentedPage = `<html><body>
<table id="visible"><thead>
<tr class="over_header"><th colspan="2">Performance</th></tr>
<tr><th>Player</th><th colspan="2">xG</th></tr>
</thead><tbody>
<tr><th><a href="/en/players/aaaa1111/Ann">Ann</a></th><td>0.4</td><td>0.1</td></tr>
<tr class="thead"><th>Player</th><th>xG</th><th>xG</th></tr>
</tbody></table>
<div id="all_keeper"><!--
<table id="keeper_stats"><thead><tr><th>Player</th><th>Saves</th></tr></thead>
<tbody><tr><th>Bo</th><td>3</td></tr></tbody></table>
--></div>
<table><tr><td>no header</td></tr></table>
</body></html>`

func TestExtractTables(t *testing.T) {
	tables, err := ExtractTables(strings.NewReader(commentedPage))
	require.NoError(t, err)
	require.Len(t, tables, 2)

	vis := tables[0]
	require.Equal(t, "visible", vis.ID)
	require.Equal(t, []string{"Player", "xG", "xG"}, vis.Columns)
	require.Len(t, vis.Rows, 1)
	require.Equal(t, "Ann", vis.Rows[0][0].Text)
	require.Equal(t, "/en/players/aaaa1111/Ann", vis.Rows[0][0].Target)

	keeper := tables[1]
	require.Equal(t, "keeper_stats", keeper.ID)
	require.Equal(t, "3", keeper.Rows[0][1].Text)
}

func TestDumpTablesForDebug(t *testing.T) {
	tables, err := ExtractTables(strings.NewReader(commentedPage))
	require.NoError(t, err)

	var buf bytes.Buffer
	DumpTablesForDebug(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), tables, "m1")
	out := buf.String()
	require.Contains(t, out, "id=keeper_stats")
	require.Contains(t, out, "columns=Player|xG|xG")

	require.NotPanics(t, func() { DumpTablesForDebug(nil, tables, "m1") })
}
