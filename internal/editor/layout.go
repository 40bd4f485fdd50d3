package editor

// Panel sizing: long course names get a wider panel so titles are not
// clipped, via a capped linear formula bounded by the viewport.

const (
	panelMinWidth    = 440
	panelMaxWidth    = 980
	panelPerChar     = 7
	panelViewportPad = 320 // room left for the table behind the panel
)

// PanelWidth returns the editor panel width in pixels for a course name of
// nameLen characters on a viewport of the given width.
func PanelWidth(nameLen, viewport int) int {
	w := panelMinWidth + panelPerChar*nameLen
	if w > panelMaxWidth {
		w = panelMaxWidth
	}
	if viewport > 0 {
		if max := viewport - panelViewportPad; w > max {
			w = max
		}
	}
	if w < panelMinWidth {
		w = panelMinWidth
	}
	return w
}
