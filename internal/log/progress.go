package log

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ProgressIndicator provides terminal feedback for long-running training
// runs: a bar over basis rounds or sweep steps with the current relative
// error alongside.
type ProgressIndicator struct {
	mu         sync.Mutex
	name       string
	total      int
	current    int
	startTime  time.Time
	showBar    bool
	showETA    bool
	lastDetail string
}

// ProgressConfig configures progress indicator behavior.
type ProgressConfig struct {
	ShowBar bool
	ShowETA bool
}

// DefaultProgressConfig returns the interactive configuration.
func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{ShowBar: true, ShowETA: true}
}

// QuietProgressConfig disables terminal drawing; structured logs still
// carry the same information.
func QuietProgressConfig() ProgressConfig {
	return ProgressConfig{}
}

// NewProgressIndicator creates a progress indicator over total units.
func NewProgressIndicator(name string, total int, config ProgressConfig) *ProgressIndicator {
	return &ProgressIndicator{
		name:      name,
		total:     total,
		startTime: time.Now(),
		showBar:   config.ShowBar,
		showETA:   config.ShowETA,
	}
}

// Update sets the current progress value with a detail suffix, typically
// the round's relative error.
func (pi *ProgressIndicator) Update(current int, detail string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	pi.current = current
	pi.lastDetail = detail
	if pi.showBar {
		pi.draw()
	}
}

// Finish completes the indicator and prints the closing summary line.
func (pi *ProgressIndicator) Finish(message string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if pi.showBar {
		fmt.Printf("\r\033[K%s: %s (%v)\n", pi.name, message, time.Since(pi.startTime).Round(time.Millisecond))
	}
}

// Fail marks the run as failed on the terminal.
func (pi *ProgressIndicator) Fail(reason string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if pi.showBar {
		fmt.Printf("\r\033[K%s failed: %s (%v)\n", pi.name, reason, time.Since(pi.startTime).Round(time.Millisecond))
	}
}

func (pi *ProgressIndicator) draw() {
	var out strings.Builder
	out.WriteString("\r\033[K")
	out.WriteString(pi.name)

	if pi.total > 0 {
		const barWidth = 20
		filled := barWidth * pi.current / pi.total
		out.WriteString(" [")
		for i := 0; i < barWidth; i++ {
			if i < filled {
				out.WriteString("█")
			} else {
				out.WriteString("░")
			}
		}
		out.WriteString(fmt.Sprintf("] %d/%d", pi.current, pi.total))
	}

	if pi.showETA && pi.total > 0 && pi.current > 0 && pi.current < pi.total {
		elapsed := time.Since(pi.startTime)
		rate := float64(pi.current) / elapsed.Seconds()
		eta := time.Duration(float64(pi.total-pi.current)/rate) * time.Second
		out.WriteString(fmt.Sprintf(" ETA: %v", eta.Round(time.Second)))
	}

	if pi.lastDetail != "" {
		out.WriteString(" - ")
		out.WriteString(pi.lastDetail)
	}

	fmt.Print(out.String())
}

// StepLogger narrates the phases of one experiment run (dataset, training,
// persistence) with per-step timing.
type StepLogger struct {
	name        string
	steps       []string
	currentStep int
	stepStart   time.Time
	startTime   time.Time
	stepTimes   []time.Duration
}

// NewStepLogger creates a step logger over the named phases.
func NewStepLogger(name string, steps []string) *StepLogger {
	return &StepLogger{
		name:        name,
		steps:       steps,
		currentStep: -1,
		startTime:   time.Now(),
		stepTimes:   make([]time.Duration, len(steps)),
	}
}

// StartStep begins the named phase.
func (sl *StepLogger) StartStep(stepName string) {
	stepIndex := -1
	for i, step := range sl.steps {
		if step == stepName {
			stepIndex = i
			break
		}
	}
	if stepIndex == -1 {
		log.Warn().Str("step", stepName).Msg("unknown experiment step")
		return
	}

	sl.completeCurrent()
	sl.currentStep = stepIndex
	sl.stepStart = time.Now()

	log.Info().
		Str("run", sl.name).
		Str("step", stepName).
		Int("step_number", stepIndex+1).
		Int("total_steps", len(sl.steps)).
		Msg("starting step")
}

// Finish closes the current phase and logs the timing summary.
func (sl *StepLogger) Finish() {
	sl.completeCurrent()
	total := time.Since(sl.startTime)

	log.Info().Str("run", sl.name).Dur("total_duration", total).Msg("run complete")
	for i, step := range sl.steps {
		if sl.stepTimes[i] == 0 {
			continue
		}
		log.Info().
			Str("step", step).
			Dur("duration", sl.stepTimes[i]).
			Msgf("  %d. %s", i+1, step)
	}
}

// Fail logs an aborted run with the phase it died in.
func (sl *StepLogger) Fail(reason string) {
	step := "unknown"
	if sl.currentStep >= 0 && sl.currentStep < len(sl.steps) {
		step = sl.steps[sl.currentStep]
	}
	log.Error().
		Str("run", sl.name).
		Str("failed_step", step).
		Str("reason", reason).
		Msg("run failed")
}

func (sl *StepLogger) completeCurrent() {
	if sl.currentStep < 0 {
		return
	}
	duration := time.Since(sl.stepStart)
	sl.stepTimes[sl.currentStep] = duration
	log.Info().
		Str("step", sl.steps[sl.currentStep]).
		Dur("duration", duration).
		Msg("step completed")
}
