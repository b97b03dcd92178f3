package narration

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/checkpoint"
	"github.com/dgnsrekt/narrator/internal/chunker"
	"github.com/dgnsrekt/narrator/internal/pipeline"
)

// plan is where a run starts and with which parameters.
type plan struct {
	params  pipeline.Params
	chunks  []chunker.Chunk
	start   int
	resumed *checkpoint.Checkpoint

	// discard is set when an existing checkpoint must be removed before the
	// output is written.
	discard bool
}

func textSum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (r *Runner) segment(text string, p pipeline.Params) []chunker.Chunk {
	res := chunker.SegmentWith(text, chunker.Options{MaxChars: p.MaxChunkChars, Tokenizer: r.opts.Tokenizer})
	return res.Chunks
}

func (r *Runner) freshPlan(req Request) plan {
	return plan{params: req.Params, chunks: r.segment(req.Text, req.Params)}
}

// planRun decides between a fresh run and a resume. It reads but never
// modifies files.
func (r *Runner) planRun(req Request, cpPath, sum string) plan {
	cp, err := checkpoint.Load(cpPath)
	if err != nil {
		log.Warn("ignoring unreadable checkpoint", "path", cpPath, "err", err)
		return r.discardPlan(req)
	}
	if cp == nil {
		return r.freshPlan(req)
	}
	if !req.Resume {
		log.Info("discarding checkpoint, starting fresh", "path", cpPath, "index", cp.FailedChunkIndex)
		return r.discardPlan(req)
	}

	if _, err := os.Stat(req.OutputPath); err != nil {
		log.Warn("checkpoint found but output is missing, starting fresh", "output", req.OutputPath)
		return r.discardPlan(req)
	}

	p, err := r.applyCheckpoint(req.Params, cp)
	if err != nil {
		log.Warn("checkpoint parameters are unusable, starting fresh", "path", cpPath, "err", err)
		return r.discardPlan(req)
	}
	if cp.TextSHA256 != "" && cp.TextSHA256 != sum {
		log.Warn("input text changed since the checkpoint was written", "path", cpPath)
	}

	chunks := r.segment(req.Text, p)
	if cp.FailedChunkIndex > len(chunks) {
		log.Warn("checkpoint index is past the end of the text, starting fresh",
			"index", cp.FailedChunkIndex, "chunks", len(chunks))
		return r.discardPlan(req)
	}

	logDrift(req.Params, p)
	log.Info("resuming from checkpoint", "path", cpPath, "index", cp.FailedChunkIndex, "chunks", len(chunks))
	return plan{params: p, chunks: chunks, start: cp.FailedChunkIndex, resumed: cp}
}

func (r *Runner) discardPlan(req Request) plan {
	pl := r.freshPlan(req)
	pl.discard = true
	return pl
}

// applyCheckpoint overlays the parameters stored in cp on p. Parameters the
// checkpoint does not carry keep the request's value.
func (r *Runner) applyCheckpoint(p pipeline.Params, cp *checkpoint.Checkpoint) (pipeline.Params, error) {
	if cp.Voice != "" {
		p.Voice = cp.Voice
	}
	if cp.Speed != 0 {
		p.Speed = cp.Speed
	}
	if cp.SampleRate != 0 {
		p.SampleRate = cp.SampleRate
	}
	if cp.MaxChunkChars != 0 {
		p.MaxChunkChars = cp.MaxChunkChars
	}
	// Zero is a valid threshold and margin, so only a missing field is skipped.
	if cp.SilenceThreshold != nil {
		p.SilenceThreshold = *cp.SilenceThreshold
	}
	if cp.SilenceMarginSamples != nil {
		p.SilenceMarginSamples = *cp.SilenceMarginSamples
	}
	if cp.BatchWidth != 0 {
		p.BatchWidth = cp.BatchWidth
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	if _, err := r.voices.Lookup(p.Voice); err != nil {
		return p, err
	}
	return p, nil
}

func logDrift(requested, used pipeline.Params) {
	var kv []any
	add := func(key string, want, got any) {
		if want != got {
			kv = append(kv, key, got, key+"_requested", want)
		}
	}
	add("voice", requested.Voice, used.Voice)
	add("speed", requested.Speed, used.Speed)
	add("sample_rate", requested.SampleRate, used.SampleRate)
	add("max_chunk_chars", requested.MaxChunkChars, used.MaxChunkChars)
	add("silence_threshold", requested.SilenceThreshold, used.SilenceThreshold)
	add("silence_margin_samples", requested.SilenceMarginSamples, used.SilenceMarginSamples)
	add("batch_width", requested.BatchWidth, used.BatchWidth)
	if len(kv) > 0 {
		log.Warn("resuming with checkpoint parameters", kv...)
	}
}

// template returns the checkpoint written if this run is interrupted.
func template(p pipeline.Params, sum string) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		Voice:                p.Voice,
		Speed:                p.Speed,
		SampleRate:           p.SampleRate,
		MaxChunkChars:        p.MaxChunkChars,
		SilenceThreshold:     &p.SilenceThreshold,
		SilenceMarginSamples: &p.SilenceMarginSamples,
		BatchWidth:           p.BatchWidth,
		TextSHA256:           sum,
	}
}
