package speech

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"edo/pkg/events"
)

const noAudioNotice = "音声が取得できませんでした。"

// Publisher is the slice of the event router the worker needs.
type Publisher interface {
	Publish(topic string, ev events.Event) error
}

// Worker transcribes recordings off the consuming loop and reports back as
// events on the chat topic.
type Worker struct {
	rec     Recognizer
	pub     Publisher
	timeout time.Duration
}

func NewWorker(rec Recognizer, pub Publisher, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Worker{rec: rec, pub: pub, timeout: timeout}
}

// Submit transcribes the recording in a fresh goroutine and publishes
// exactly one speech-result or speech-failed event.
func (w *Worker) Submit(rec *Recording) {
	go func() {
		if rec == nil || rec.Empty() {
			w.publish(events.NewText(events.KindSpeechFailed, 0, noAudioNotice))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		text, err := w.rec.Transcribe(ctx, rec)
		if err != nil {
			log.Warn().Err(err).Msg("transcription failed")
			w.publish(events.NewError(events.KindSpeechFailed, 0, err))
			return
		}
		if text == "" {
			w.publish(events.NewText(events.KindSpeechFailed, 0, noAudioNotice))
			return
		}
		w.publish(events.NewText(events.KindSpeechResult, 0, text))
	}()
}

func (w *Worker) publish(ev events.Event) {
	if err := w.pub.Publish(events.TopicChat, ev); err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("publish failed")
	}
}
