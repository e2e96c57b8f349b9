package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ledOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	ledOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	ledRawStyle = lipgloss.NewStyle().Faint(true)
)

// renderLEDs draws one lamp per LED followed by the raw vector.
func renderLEDs(leds []int32) string {
	if len(leds) == 0 {
		return ledRawStyle.Render("(no LEDs)")
	}

	lamps := make([]string, len(leds))
	raw := make([]string, len(leds))
	for i, v := range leds {
		if v != 0 {
			lamps[i] = ledOnStyle.Render("●")
		} else {
			lamps[i] = ledOffStyle.Render("○")
		}
		raw[i] = fmt.Sprint(v)
	}
	return strings.Join(lamps, " ") + "  " + ledRawStyle.Render("["+strings.Join(raw, " ")+"]")
}
