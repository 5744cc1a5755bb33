package tui

const (
	ColorBorder        = "#3A3F55"
	ColorPrimaryText   = "#E6EAF2"
	ColorSecondaryText = "#B1B8C7"
	ColorHelpText      = "240"
	ColorAccentMain    = "#7C3AED"
	ColorAccentBright  = "#A78BFA"
	ColorError         = "#EF4444"
	ColorSuccess       = "#22C55E"
	ColorWarning       = "#F59E0B"
)
