package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/audio/capture"
	"github.com/MrWong99/voicesphere/pkg/audio/mock"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCapture_FinalizeConcatenatesInOrder(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{}
	src := capture.NewSource(mic)
	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := src.Begin(stream)

	s := mic.Last()
	frames := []audio.AudioFrame{
		{Data: audio.Int16sToBytes([]int16{1, 2}), SampleRate: 16000, Channels: 1},
		{Data: audio.Int16sToBytes([]int16{3, 4}), SampleRate: 16000, Channels: 1},
		{Data: audio.Int16sToBytes([]int16{5}), SampleRate: 16000, Channels: 1},
	}
	for _, f := range frames {
		s.Send(f)
	}
	waitFor(t, func() bool { return c.Chunks() == len(frames) })

	buf, ok := c.Finalize()
	if !ok {
		t.Fatal("Finalize reported EmptyCapture")
	}
	if buf.ContentType != audio.ContentTypeWAV {
		t.Errorf("ContentType = %q, want %q", buf.ContentType, audio.ContentTypeWAV)
	}
	if buf.Chunks != 3 {
		t.Errorf("Chunks = %d, want 3", buf.Chunks)
	}
	pcm, f, err := audio.DecodeWAV(buf.Data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if f != audio.SpeechFormat {
		t.Errorf("format = %v", f)
	}
	got := audio.BytesToInt16s(pcm)
	want := []int16{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("samples = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("samples = %v, want %v", got, want)
		}
	}
	if !s.IsClosed() {
		t.Error("Finalize did not close the stream")
	}
}

func TestCapture_EmptyCapture(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{}
	src := capture.NewSource(mic)
	stream, _ := src.Open(context.Background())
	c := src.Begin(stream)

	if _, ok := c.Finalize(); ok {
		t.Error("Finalize with zero chunks should report EmptyCapture")
	}
	if !mic.Last().IsClosed() {
		t.Error("EmptyCapture must still release the stream")
	}
}

func TestCapture_ReleaseIsIdempotentAndAllowsReopen(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{RejectWhileOpen: true}
	src := capture.NewSource(mic)
	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := src.Begin(stream)
	mic.Last().Send(mock.Tone(10*time.Millisecond, 0.3))
	waitFor(t, func() bool { return c.Chunks() == 1 })

	c.Release()
	c.Release()

	if _, ok := c.Finalize(); ok {
		t.Error("Finalize after Release should report EmptyCapture")
	}
	if _, err := src.Open(context.Background()); err != nil {
		t.Errorf("reopen after Release: %v", err)
	}
}

func TestCapture_CeilingForcesDone(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{}
	src := capture.NewSource(mic, capture.WithCeiling(30*time.Millisecond))
	stream, _ := src.Open(context.Background())
	c := src.Begin(stream)
	defer c.Release()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("ceiling did not close Done")
	}
}

func TestCapture_StreamEndClosesDone(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{}
	src := capture.NewSource(mic)
	stream, _ := src.Open(context.Background())
	c := src.Begin(stream)
	defer c.Release()

	_ = mic.Last().Close()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("stream end did not close Done")
	}
}

func TestCapture_LevelTracksLatestFrame(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{}
	src := capture.NewSource(mic)
	stream, _ := src.Open(context.Background())
	c := src.Begin(stream)
	defer c.Release()

	mic.Last().Send(mock.Tone(10*time.Millisecond, 0.2))
	waitFor(t, func() bool { return c.Level() > 0.5 })

	mic.Last().Send(mock.Tone(10*time.Millisecond, 0))
	waitFor(t, func() bool { return c.Level() == 0 })
}

func TestCapture_LevelDecaysWithoutFrames(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{}
	src := capture.NewSource(mic, capture.WithLevelStale(100*time.Millisecond))
	stream, _ := src.Open(context.Background())
	c := src.Begin(stream)
	defer c.Release()

	mic.Last().Send(mock.Tone(10*time.Millisecond, 0.2))
	waitFor(t, func() bool { return c.Level() > 0.5 })

	// The stream stays open but goes quiet.
	waitFor(t, func() bool { return c.Level() == 0 })

	mic.Last().Send(mock.Tone(10*time.Millisecond, 0.2))
	waitFor(t, func() bool { return c.Level() > 0.5 })
}

func TestSource_PermissionDenied(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{OpenErr: audio.ErrPermissionDenied}
	_, err := capture.NewSource(mic).Open(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}
