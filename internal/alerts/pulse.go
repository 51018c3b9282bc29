package alerts

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalwatch/internal/domain/signal"
	"signalwatch/internal/metrics"
	"signalwatch/pkg/logger"
)

// Tone frequencies per event kind
const (
	BuyToneHz  = 880
	SellToneHz = 440
)

// PulseConfig shapes the audible pulse of an alert
type PulseConfig struct {
	Duration   time.Duration // envelope of one pulse
	ToneEvery  time.Duration
	ToneLength time.Duration
}

// DefaultPulseConfig returns a 10s envelope with a 200ms tone every second
func DefaultPulseConfig() PulseConfig {
	return PulseConfig{
		Duration:   10 * time.Second,
		ToneEvery:  time.Second,
		ToneLength: 200 * time.Millisecond,
	}
}

// Tone is one beep within a pulse
type Tone struct {
	PulseID     string           `json:"pulseId"`
	Kind        signal.EventKind `json:"kind"`
	Seq         int              `json:"seq"`
	FrequencyHz int              `json:"frequencyHz"`
	DurationMs  int              `json:"durationMs"`
}

// ToneSink plays tones. Implementations must not block.
type ToneSink interface {
	PlayTone(tone Tone)
	EndPulse(pulseID string, kind signal.EventKind)
}

// Pulser runs at most one pulse at a time. A new trigger cancels the running
// pulse and starts over.
type Pulser struct {
	cfg  PulseConfig
	sink ToneSink
	log  *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPulser creates a pulser. Zero config fields take the defaults.
func NewPulser(cfg PulseConfig, sink ToneSink) *Pulser {
	def := DefaultPulseConfig()
	if cfg.Duration <= 0 {
		cfg.Duration = def.Duration
	}
	if cfg.ToneEvery <= 0 {
		cfg.ToneEvery = def.ToneEvery
	}
	if cfg.ToneLength <= 0 {
		cfg.ToneLength = def.ToneLength
	}
	return &Pulser{
		cfg:  cfg,
		sink: sink,
		log:  logger.Get().With("component", "pulser"),
	}
}

// Trigger starts a pulse for kind and returns its id
func (p *Pulser) Trigger(kind signal.EventKind) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	restart := p.cancelLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	id := uuid.New().String()
	metrics.PulsesStarted.WithLabelValues(string(kind), strconv.FormatBool(restart)).Inc()
	p.log.Debug("Alert pulse started", "pulse", id, "kind", kind, "restart", restart)

	go p.run(ctx, done, id, kind)
	return id
}

// Stop cancels the running pulse, if any, and waits for it to exit
func (p *Pulser) Stop() {
	p.mu.Lock()
	done := p.done
	p.cancelLocked()
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Active reports whether a pulse is running
func (p *Pulser) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// cancelLocked stops the current pulse and reports whether one was running
func (p *Pulser) cancelLocked() bool {
	if p.cancel == nil {
		return false
	}
	running := false
	select {
	case <-p.done:
	default:
		running = true
	}
	p.cancel()
	p.cancel = nil
	p.done = nil
	return running
}

func (p *Pulser) run(ctx context.Context, done chan struct{}, id string, kind signal.EventKind) {
	defer close(done)

	tones := int((p.cfg.Duration + p.cfg.ToneEvery - 1) / p.cfg.ToneEvery)
	envelope := time.NewTimer(p.cfg.Duration)
	defer envelope.Stop()
	ticker := time.NewTicker(p.cfg.ToneEvery)
	defer ticker.Stop()

	p.play(id, kind, 0)
	for seq := 1; seq < tones; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-envelope.C:
			p.end(id, kind)
			return
		case <-ticker.C:
			p.play(id, kind, seq)
		}
	}

	select {
	case <-ctx.Done():
	case <-envelope.C:
		p.end(id, kind)
	}
}

func (p *Pulser) play(id string, kind signal.EventKind, seq int) {
	if p.sink == nil {
		return
	}
	p.sink.PlayTone(Tone{
		PulseID:     id,
		Kind:        kind,
		Seq:         seq,
		FrequencyHz: ToneFrequency(kind),
		DurationMs:  int(p.cfg.ToneLength / time.Millisecond),
	})
}

func (p *Pulser) end(id string, kind signal.EventKind) {
	p.log.Debug("Alert pulse ended", "pulse", id, "kind", kind)
	if p.sink != nil {
		p.sink.EndPulse(id, kind)
	}
}

// ToneFrequency returns the beep pitch for kind
func ToneFrequency(kind signal.EventKind) int {
	if kind == signal.EventKindSell {
		return SellToneHz
	}
	return BuyToneHz
}
