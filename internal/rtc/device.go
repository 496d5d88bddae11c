package rtc

import (
	"context"
	"math"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	toneFrequency  = 440.0
	toneSampleRate = 8000
	toneAmplitude  = 16000
	frameDuration  = 20 * time.Millisecond
	frameSamples   = toneSampleRate / 50 // 20ms of 8kHz audio
)

// SyntheticDevice is the capture device used by the headless call client.
// Audio is a G.711 sine tone so the far side hears something measurable;
// the video track is negotiated but carries no frames. Real capture lives
// in the browser; this exists for diagnostics and load drills against a
// deployed relay.
type SyntheticDevice struct {
	// ToneHz overrides the tone frequency when non-zero.
	ToneHz float64
}

func (d *SyntheticDevice) Capture(ctx context.Context, c CaptureConstraints) (*LocalMedia, error) {
	out := &LocalMedia{}

	if c.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: toneSampleRate},
			"audio",
			"televisit-synthetic",
		)
		if err != nil {
			return nil, NewError("create audio track", err)
		}

		stop := make(chan struct{})
		track := NewMediaTrack(audio, func() { close(stop) })
		go toneLoop(audio, track, stop, d.frequency())
		out.Audio = track
	}

	if c.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video",
			"televisit-synthetic",
		)
		if err != nil {
			if out.Audio != nil {
				out.Audio.Stop()
			}
			return nil, NewError("create video track", err)
		}
		out.Video = NewMediaTrack(video, nil)
	}

	return out, nil
}

func (d *SyntheticDevice) frequency() float64 {
	if d.ToneHz > 0 {
		return d.ToneHz
	}
	return toneFrequency
}

// toneLoop writes one 20ms PCMU frame per tick until stopped. A disabled
// track emits G.711 silence instead of the tone, matching the "track stays,
// goes quiet" toggle semantics.
func toneLoop(track *webrtc.TrackLocalStaticSample, gate *MediaTrack, stop <-chan struct{}, freq float64) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	var phase float64
	step := 2 * math.Pi * freq / toneSampleRate

	frame := make([]byte, frameSamples)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if gate.Enabled() {
				for i := range frame {
					frame[i] = muLawEncode(int16(toneAmplitude * math.Sin(phase)))
					phase += step
				}
			} else {
				for i := range frame {
					frame[i] = 0xFF // mu-law silence
				}
			}

			track.WriteSample(media.Sample{Data: frame, Duration: frameDuration})
		}
	}
}

// muLawEncode converts one linear PCM sample to G.711 mu-law.
func muLawEncode(s int16) byte {
	const bias = 0x84
	v := int(s) // widen before negating; -MinInt16 overflows int16
	var sign byte
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > 32635 {
		v = 32635
	}
	v += bias

	exp := byte(7)
	for mask := 0x4000; mask != 0 && v&mask == 0; mask >>= 1 {
		exp--
	}
	mant := byte((v >> (exp + 3)) & 0x0F)
	return ^(sign | exp<<4 | mant)
}
