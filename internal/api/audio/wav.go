package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"net/http"
	"strconv"
	"sync"
)

const (
	SampleRate = 44100

	DefaultFrequencyHz = 880
	DefaultDurationMs  = 200

	maxFrequencyHz = 8000
	maxDurationMs  = 2000
	amplitude      = 3000.0
)

// SynthBeep renders a mono PCM16 sine beep as a WAV file
func SynthBeep(durationMs, freqHz, sampleRate int) []byte {
	if durationMs <= 0 {
		durationMs = DefaultDurationMs
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}

	n := durationMs * sampleRate / 1000
	dataSize := n * 2

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))

	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		v := amplitude * math.Sin(2*math.Pi*float64(freqHz)*t)
		_ = binary.Write(&buf, binary.LittleEndian, int16(v))
	}
	return buf.Bytes()
}

type beepKey struct {
	freq int
	ms   int
}

// Handler serves /alert.wav?freq=&ms= with rendered beeps cached in memory
type Handler struct {
	mu    sync.Mutex
	cache map[beepKey][]byte
}

// NewHandler creates a beep handler
func NewHandler() *Handler {
	return &Handler{cache: make(map[beepKey][]byte)}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := beepKey{
		freq: queryInt(r, "freq", DefaultFrequencyHz, maxFrequencyHz),
		ms:   queryInt(r, "ms", DefaultDurationMs, maxDurationMs),
	}

	h.mu.Lock()
	wav, ok := h.cache[key]
	if !ok {
		wav = SynthBeep(key.ms, key.freq, SampleRate)
		h.cache[key] = wav
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	_, _ = w.Write(wav)
}

// queryInt falls back to def for missing or non-positive values and caps at limit
func queryInt(r *http.Request, name string, def, limit int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	if v > limit {
		return limit
	}
	return v
}
