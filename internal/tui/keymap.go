package tui

// Key binding constants used in handleKey.
const (
	KeyStop  = "s"
	KeyEnter = "enter"
	KeyEsc   = "esc"
	KeyCtrlC = "ctrl+c"
	KeyQuit  = "q"
)
