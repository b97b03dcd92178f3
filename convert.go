package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/checkpoint"
	"github.com/dgnsrekt/narrator/internal/narration"
	"github.com/dgnsrekt/narrator/internal/progress"
	"github.com/dgnsrekt/narrator/internal/wav"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// convert narrates one text and reports the outcome.
func (a *app) convert(ctx context.Context, text, input, output string, resume bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctl := narration.NewControl()
	stop := watchSignals(ctl, cancel)
	defer stop()

	req := narration.Request{
		Text:       text,
		InputPath:  input,
		OutputPath: output,
		Params:     a.cfg.Params(),
		Resume:     resume,
	}

	view := newStatusView(os.Stderr)
	var final narration.Update
	for u := range a.runner.Synthesize(ctx, req, ctl) {
		if u.Final() {
			final = u
			continue
		}
		view.update(u)
	}
	view.clear()

	return report(os.Stdout, final, checkpoint.PathFor(input, output), a.cfg.SampleRate)
}

// watchSignals turns the first SIGINT or SIGTERM into a pause, the second
// into a cancel, and SIGHUP into a stop.
func watchSignals(ctl *narration.Control, cancel context.CancelFunc) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		interrupts := 0
		for {
			select {
			case <-done:
				return
			case s := <-sigs:
				if s == syscall.SIGHUP {
					log.Warn("Stopping after the current batch, the checkpoint will be removed")
					ctl.Stop()
					continue
				}
				interrupts++
				if interrupts == 1 {
					log.Warn("Pausing after the current batch, interrupt again to abort now")
					ctl.Pause()
					continue
				}
				log.Warn("Aborting")
				cancel()
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// statusView draws a status line on a terminal and logs progress otherwise.
type statusView struct {
	w     io.Writer
	tty   bool
	width int
	drawn bool
}

func newStatusView(f *os.File) *statusView {
	v := &statusView{w: f}
	if hideProgress || envConfig.NoProgress {
		return v
	}
	fd := int(f.Fd()) //nolint:gosec
	if term.IsTerminal(fd) {
		v.tty = true
		if w, _, err := term.GetSize(fd); err == nil {
			v.width = w
		}
	}
	return v
}

func (v *statusView) update(u narration.Update) {
	ev := u.Progress
	if !v.tty {
		log.Info(ev.Message, "eta", ev.ETAMessage)
		return
	}
	fmt.Fprint(v.w, "\r\x1b[2K"+progress.Render(*ev, v.width))
	v.drawn = true
}

func (v *statusView) clear() {
	if v.drawn {
		fmt.Fprint(v.w, "\r\x1b[2K")
		v.drawn = false
	}
}

// report prints the terminal update. Only a failure is returned as an error.
func report(w io.Writer, u narration.Update, cpPath string, sampleRate int) error {
	switch u.Outcome {
	case narration.Success:
		size := int64(0)
		if st, err := os.Stat(u.OutputPath); err == nil {
			size = st.Size()
		}
		dur := time.Duration(0)
		if data := size - wav.HeaderSize; data > 0 && sampleRate > 0 {
			dur = time.Duration(data/2) * time.Second / time.Duration(sampleRate)
		}
		fmt.Fprintf(w, "%s Wrote %s (%s, %s)\n", successStyle.Render("✓"), keyword(u.OutputPath),
			progress.Clock(dur.Round(time.Second)), humanize.Bytes(uint64(size))) //nolint:gosec
		return nil
	case narration.Paused:
		where := ""
		if u.Checkpoint != nil {
			where = fmt.Sprintf(" Checkpoint saved to %s.", cpPath)
		}
		fmt.Fprintf(w, "%s Paused at chunk %d/%d.%s Run the same command again to resume.\n",
			warnStyle.Render("‖"), u.ChunksDone, u.ChunksTotal, where)
		return nil
	case narration.Stopped:
		fmt.Fprintf(w, "%s Stopped at chunk %d/%d. The partial file was kept, the checkpoint was removed.\n",
			warnStyle.Render("■"), u.ChunksDone, u.ChunksTotal)
		return nil
	default:
		fmt.Fprintf(w, "%s %v\n", errorStyle.Render("✗"), u.Err)
		return u.Err
	}
}
