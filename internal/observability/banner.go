package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorBold     = "\033[1m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

var radarFrames = []string{"◜", "◝", "◞", "◟"}
var radarIdx = 0

// termMu synchronizes ALL terminal output so that the cursor
// save/restore in PrintLiveStatus can never be interrupted by a log write.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// termWriter is a mutex-guarded io.Writer for log output, so log lines and
// the live status line never interleave.
type termWriter struct {
	w io.Writer
}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.w.Write(p)
}

// NewTermWriter returns a stderr writer that serialises with PrintLiveStatus.
func NewTermWriter() io.Writer {
	return termWriter{w: os.Stderr}
}

func PrintBanner(name, tagline string) {
	banner := `
                   __                      __
  _________  ____/ /__  ____ ___  ____ _/ /____
 / ___/ __ \/ __  / _ \/ __ '__ \/ __ '/ __/ _ \
/ /__/ /_/ / /_/ /  __/ / / / / / /_/ / /_/  __/
\___/\____/\__,_/\___/_/ /_/ /_/\__,_/\__/\___/
`
	width := termWidth()
	lines := strings.Split(banner, "\n")
	lines = append(lines, fmt.Sprintf(">> %s <<", strings.ToUpper(name)), tagline, "")

	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range lines {
		padding := (width - len([]rune(l))) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

func InitializeTerminal() {
	// Header/Logo area: 1-9
	// Dashboard/Status: 10
	// Gap: 11
	// Scrolling Logs: 12+
	fmt.Print("\033[2J\033[H")
	fmt.Print("\033[12;r")
	fmt.Print("\033[12;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// StatusLine renders the one-line dashboard without terminal escapes.
func StatusLine() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime).Round(time.Second)
	memMB := float64(m.Alloc) / 1024 / 1024

	role, task, lastHB := GetStatus()

	pulse := "OFFLINE"
	delta := time.Since(lastHB)
	if delta < 40*time.Second {
		pulse = "HEALTHY"
	} else if delta < 90*time.Second {
		pulse = "LAGGING"
	}

	radar := " "
	if role != RoleIdle {
		radar = radarFrames[radarIdx]
		radarIdx = (radarIdx + 1) % len(radarFrames)
	}

	displayTask := task
	if displayTask == "" {
		displayTask = "Waiting..."
	}
	if r := []rune(displayTask); len(r) > 25 {
		displayTask = string(r[:22]) + "..."
	}

	totalMB := float64(m.Sys) / 1024 / 1024
	memPercent := 0.0
	if totalMB > 0 {
		memPercent = memMB / totalMB
	}
	barWidth := 20
	filled := clamp(int(memPercent*float64(barWidth)), 0, barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("▒", barWidth-filled)

	return fmt.Sprintf("[%s] %-7s | [%-9s] [%s] %s [%v] [done %d] [%s %.1fMB]",
		lastHB.Format("15:04:05"), pulse, role, displayTask, radar, uptime, TasksRun(), bar, memMB)
}

// PrintLiveStatus redraws the dashboard line at row 10.
func PrintLiveStatus() {
	line := StatusLine()
	color := colorNeonCyan
	if role, _, _ := GetStatus(); role != RoleIdle {
		color = colorNeonMag
	}
	statusStr := fmt.Sprintf("\033[s\033[10;1H\033[K%s%s%s%s\033[u", colorBold, color, line, colorReset)

	termMu.Lock()
	fmt.Print(statusStr)
	termMu.Unlock()
}
