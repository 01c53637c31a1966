package watch

import (
	"strings"
	"time"
)

const pulseWidth = 5

// Pulse lights up when a delivery arrives and fades over the following
// seconds, so a quiet receiver is visibly quiet.
type Pulse struct {
	lit  int
	last time.Time
}

// Hit records activity at now.
func (p *Pulse) Hit(now time.Time) {
	p.lit = pulseWidth
	p.last = now
}

// Fade dims the pulse by one segment for every two seconds of silence.
func (p *Pulse) Fade(now time.Time) {
	if p.lit == 0 {
		return
	}
	left := pulseWidth - int(now.Sub(p.last)/(2*time.Second))
	if left < 0 {
		left = 0
	}
	p.lit = left
}

// Last is the time of the most recent hit; zero if none.
func (p Pulse) Last() time.Time {
	return p.last
}

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for i := range pulseWidth {
		if i < p.lit {
			b.WriteString(theme.PulseOn.Render("●"))
		} else {
			b.WriteString(theme.PulseOff.Render("○"))
		}
	}
	return b.String()
}
