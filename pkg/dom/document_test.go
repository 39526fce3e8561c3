package dom

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyReplacesWholesale(t *testing.T) {
	d := NewDocument()
	d.Apply(Fragment{New("btc-price", "span", "$1.00", "price")})
	d.Apply(Fragment{New("btc-price", "span", "$2.00")})

	e, ok := d.Element("btc-price")
	require.True(t, ok)
	require.Equal(t, "$2.00", e.HTML)
	require.Empty(t, e.Classes)
	require.Equal(t, []string{"btc-price"}, d.IDs())
}

func TestOuterHTMLIsDeterministic(t *testing.T) {
	e := New("fill", "div", "", "sentiment-fill").
		WithAttr("style", "width: 72%").
		WithAttr("data-score", "72")

	require.Equal(t,
		`<div id="fill" class="sentiment-fill" data-score="72" style="width: 72%"></div>`,
		e.OuterHTML())
}

func TestSlotsExpandAndPatchIndependently(t *testing.T) {
	d := NewDocument()
	d.Apply(Fragment{
		New("left-panel", "aside", "<h2>Portfolio</h2>"+Slot("portfolio-value")),
		New("portfolio-value", "div", "$100.00", "portfolio-value"),
	})
	before := d.Snapshot()

	require.NoError(t, d.SetText("portfolio-value", "$250.50"))
	after := d.Snapshot()

	require.Equal(t, before["left-panel"], after["left-panel"])
	require.NotEqual(t, before["portfolio-value"], after["portfolio-value"])
	require.Contains(t, d.OuterHTML("left-panel"), `<div id="portfolio-value" class="portfolio-value">$250.50</div>`)
	require.Equal(t, "Portfolio $250.50", d.Text("left-panel"))
}

func TestSelfReferencingSlotTerminates(t *testing.T) {
	d := NewDocument()
	d.Apply(Fragment{New("loop", "div", Slot("loop"))})
	require.NotEmpty(t, d.OuterHTML("loop"))
}

func TestClassOperations(t *testing.T) {
	d := NewDocument()
	d.Apply(Fragment{New("card", "div", "", "panel-card")})

	require.NoError(t, d.AddClass("card", "flash"))
	require.NoError(t, d.AddClass("card", "flash"))
	e, _ := d.Element("card")
	require.Equal(t, []string{"panel-card", "flash"}, e.Classes)

	require.NoError(t, d.RemoveClass("card", "flash"))
	e, _ = d.Element("card")
	require.Equal(t, []string{"panel-card"}, e.Classes)

	on, err := d.ToggleClass("card", "expanded")
	require.NoError(t, err)
	require.True(t, on)
	on, err = d.ToggleClass("card", "expanded")
	require.NoError(t, err)
	require.False(t, on)
}

func TestPatchUnknownElement(t *testing.T) {
	d := NewDocument()
	require.ErrorIs(t, d.SetText("missing", "x"), ErrNotFound)
}

func TestPrependChildDropsPlaceholderAndCaps(t *testing.T) {
	d := NewDocument()
	d.Apply(Fragment{New("activity-feed", "div", `<div class="activity-item placeholder">No recent activity</div>`)})

	for i := 0; i < 5; i++ {
		require.NoError(t, d.PrependChild("activity-feed", `<div class="activity-item">trade `+strconv.Itoa(i)+`</div>`, 3))
	}

	require.Equal(t, 3, d.ChildCount("activity-feed"))
	require.Equal(t, "trade 4 trade 3 trade 2", d.Text("activity-feed"))
}

func TestTextContentUnescapes(t *testing.T) {
	require.Equal(t, "P&L +$5.00", TextContent("<th>P&amp;L</th>\n  <td>+$5.00</td>"))
}
