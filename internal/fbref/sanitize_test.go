package fbref

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivedFieldParsers(t *testing.T) {
	age, ok := ParseAge("27-045")
	require.True(t, ok)
	require.Equal(t, 27, age)

	_, ok = ParseAge("")
	require.False(t, ok)

	require.Equal(t, "ENG", ParseNation("eng ENG"))
	require.Equal(t, "", ParseNation("   "))
	require.Equal(t, "MF", ParsePos("MF,FW"))
	require.Equal(t, "GK", ParsePos("GK"))
}

func profileTable(rows ...Row) Table {
	return Table{
		Columns: []string{ColPlayerID, ColPlayer, ColNation, ColPos, ColAge, "Min", "Gls"},
		Rows:    rows,
	}
}

func TestSanitize_DerivesFields(t *testing.T) {
	in := profileTable(Row{
		ColPlayerID: Text("e342ad68"),
		ColPlayer:   Text("Mohamed Salah"),
		ColNation:   Text("eg EGY"),
		ColPos:      Text("FW,MF"),
		ColAge:      Text("31-123"),
		"Min":       Num(90),
	})
	out := Sanitize(in)
	require.Len(t, out.Rows, 1)
	r := out.Rows[0]
	require.Equal(t, "EGY", r.Str(ColNation))
	require.Equal(t, "FW", r.Str(ColPos))
	require.Equal(t, Num(31), r[ColAge])
	require.Equal(t, Num(90), r["Min"])
}

func TestSanitize_TruncatesSummaryRow(t *testing.T) {
	player := func(id, name string) Row {
		return Row{
			ColPlayerID: Text(id), ColPlayer: Text(name), ColNation: Text("eng ENG"),
			ColPos: Text("DF"), ColAge: Text("25-001"), "Min": Num(90),
		}
	}
	in := profileTable(
		player("aaaa0001", "Ben White"),
		player("bbbb0002", "William Saliba"),
		player("zzzz9999", "16 Players"),
	)
	out := Sanitize(in)
	require.Len(t, out.Rows, 2)
	require.Equal(t, "William Saliba", out.Rows[1].Str(ColPlayer))

	unchanged := Sanitize(profileTable(player("aaaa0001", "Ben White"), player("bbbb0002", "William Saliba")))
	require.Len(t, unchanged.Rows, 2)
}

func TestSanitize_DropsInvalidRows(t *testing.T) {
	in := profileTable(
		Row{ColPlayerID: Text("aaaa0001"), ColPlayer: Text("   "), ColNation: Text("eng ENG"), ColPos: Text("DF"), ColAge: Text("25-001")},
		Row{ColPlayerID: Text("bbbb0002"), ColPlayer: Text("No Age"), ColNation: Text("eng ENG"), ColPos: Text("DF"), ColAge: Text(" "), "Min": Num(90)},
		Row{ColPlayerID: Text("cccc0003"), ColPlayer: Text("No Nation"), ColNation: Missing, ColPos: Text("DF"), ColAge: Text("22-100")},
		Row{ColPlayerID: Text("dddd0004"), ColPlayer: Text("Kept"), ColNation: Text("fr FRA"), ColPos: Text("MF"), ColAge: Text("22-100")},
	)
	out := Sanitize(in)
	require.Len(t, out.Rows, 1)
	require.Equal(t, "Kept", out.Rows[0].Str(ColPlayer))
	require.True(t, out.Rows[0]["Min"].IsMissing(), "blank numeric cells stay missing until the merge")
}

func TestSanitize_DropsDuplicateColumns(t *testing.T) {
	in := Table{
		Columns: []string{ColPlayerID, ColPlayer, "Cmp", "Cmp"},
		Rows:    []Row{{ColPlayerID: Text("aaaa0001"), ColPlayer: Text("A"), "Cmp": Num(4)}},
	}
	out := Sanitize(in)
	require.Equal(t, []string{ColPlayerID, ColPlayer, "Cmp"}, out.Columns)
}
