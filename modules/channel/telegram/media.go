package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/tgpt/internal/provider"
	"github.com/flemzord/tgpt/internal/relay"
	"github.com/flemzord/tgpt/internal/security"
)

// transcribeSegment is the longest piece of audio sent for transcription
// in one request.
const transcribeSegment = 120 * time.Second

var (
	errNoTranscriber = errors.New("telegram: provider does not transcribe audio")
	errNoAudio       = errors.New("telegram: no audio in media")
)

// audioTool turns downloaded media into audio segments.
type audioTool interface {
	// Segments writes the audio track of src under dir as pieces of at
	// most segment length and returns their paths in order.
	Segments(ctx context.Context, src, dir string, segment time.Duration) ([]string, error)
}

// ffmpeg is the audioTool backed by the ffmpeg binary.
type ffmpeg struct {
	path string

	// secrets are scrubbed from the environment ffmpeg inherits.
	secrets []string
}

func (f ffmpeg) Segments(ctx context.Context, src, dir string, segment time.Duration) ([]string, error) {
	bin := f.path
	if bin == "" {
		bin = "ffmpeg"
	}
	pattern := filepath.Join(dir, "segment-%04d.mp3")
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", src,
		"-vn", "-ac", "1", "-c:a", "libmp3lame", "-q:a", "5",
		"-f", "segment", "-segment_time", strconv.Itoa(int(segment.Seconds())),
		pattern,
	)
	cmd.Env = security.SanitizedEnv(f.secrets...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("telegram: ffmpeg: %w: %s", err, bytes.TrimSpace(out))
	}

	paths, err := filepath.Glob(filepath.Join(dir, "segment-*.mp3"))
	if err != nil {
		return nil, fmt.Errorf("telegram: listing segments: %w", err)
	}
	if len(paths) == 0 {
		return nil, errNoAudio
	}
	slices.Sort(paths)
	return paths, nil
}

// mediaFile returns the file id, a file name and the reported duration of
// the audio or video in m.
func mediaFile(m *Message) (fileID, name string, seconds int) {
	switch {
	case m.Voice != nil:
		return m.Voice.FileID, "voice.ogg", m.Voice.Duration
	case m.Audio != nil:
		name = m.Audio.FileName
		if name == "" {
			name = "audio.mp3"
		}
		return m.Audio.FileID, name, m.Audio.Duration
	case m.Video != nil:
		name = m.Video.FileName
		if name == "" {
			name = "video.mp4"
		}
		return m.Video.FileID, name, m.Video.Duration
	case m.VideoNote != nil:
		return m.VideoNote.FileID, "video_note.mp4", m.VideoNote.Duration
	}
	return "", "", 0
}

// handleMedia transcribes a voice, audio or video message and streams the
// transcript back. The transcript is kept for the rate dialog.
func (b *Bot) handleMedia(ctx context.Context, req *Request) error {
	if _, err := b.reply(ctx, req, b.text.RequestSent); err != nil {
		b.logger.Warn("telegram: failed to acknowledge media", "error", err)
	}

	transcript, seconds, err := b.transcribe(ctx, req)
	if err != nil {
		b.logger.Error("telegram: transcription failed", "user_id", req.UserID(), "error", err)
		if _, sendErr := b.reply(ctx, req, b.text.TranscribeFail+": "+err.Error()); sendErr != nil {
			b.logger.Warn("telegram: failed to report transcription failure", "error", sendErr)
		}
		return nil
	}

	b.transcripts.Set(req.ConversationKey(), transcript)
	b.recorder.AddTranscription(req.UserID(), userName(req.From), seconds, req.Guest)

	_, err = b.client.SendMessage(ctx, SendMessageRequest{
		ChatID:          req.ChatID(),
		Text:            b.text.TranscriptReady,
		MessageThreadID: req.ThreadID(),
		ReplyMarkup: keyboard(
			InlineKeyboardButton{Text: b.text.RateButton, CallbackData: callbackRateDialog},
			InlineKeyboardButton{Text: b.text.TranscriptButton, CallbackData: callbackTranscript},
		),
	})
	return err
}

// transcribe downloads the media of req, transcribes it segment by segment
// and streams the text into the chat. It returns the transcript and the
// transcribed duration in seconds.
func (b *Bot) transcribe(ctx context.Context, req *Request) (string, float64, error) {
	tr, ok := b.llm.(provider.Transcriber)
	if !ok {
		return "", 0, errNoTranscriber
	}
	fileID, name, reported := mediaFile(req.Message)
	if fileID == "" {
		return "", 0, errNoAudio
	}

	dir, err := os.MkdirTemp("", "tgpt-media-*")
	if err != nil {
		return "", 0, fmt.Errorf("telegram: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src, err := b.download(ctx, fileID, filepath.Join(dir, "source"+filepath.Ext(name)))
	if err != nil {
		return "", 0, err
	}
	segments, err := b.audio.Segments(ctx, src, dir, transcribeSegment)
	if err != nil {
		return "", 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var seconds float64
	chunks := make(chan provider.StreamChunk)
	go func() {
		defer close(chunks)
		send := func(c provider.StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for i, path := range segments {
			t, err := transcribeFile(ctx, tr, path)
			if err != nil {
				send(provider.StreamChunk{Err: err})
				return
			}
			seconds += t.Duration
			text := strings.TrimSpace(t.Text)
			if i > 0 && text != "" {
				text = " " + text
			}
			if !send(provider.StreamChunk{Content: text}) {
				return
			}
		}
		send(provider.StreamChunk{FinishReason: provider.FinishReasonStop})
	}()

	cfg := b.relayCfg
	cfg.IsGroup = req.IsGroup()
	sender := &chatSender{client: b.client, chatID: req.ChatID(), threadID: req.ThreadID()}
	res, err := relay.New(sender, cfg).Run(ctx, chunks)

	// The producer closes chunks once it no longer touches seconds or dir.
	cancel()
	for range chunks {
	}
	if err != nil {
		return "", 0, fmt.Errorf("telegram: relaying transcript: %w", err)
	}
	if seconds == 0 {
		seconds = float64(reported)
	}
	return res.Text, seconds, nil
}

// download fetches a Telegram file to path.
func (b *Bot) download(ctx context.Context, fileID, path string) (string, error) {
	file, err := b.client.GetFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("telegram: get file: %w", err)
	}
	if file.FilePath == "" {
		return "", ErrNoFile
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("telegram: create %s: %w", path, err)
	}
	_, err = b.client.Download(ctx, file.FilePath, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("telegram: download: %w", err)
	}
	return path, nil
}

func transcribeFile(ctx context.Context, tr provider.Transcriber, path string) (provider.Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return provider.Transcription{}, fmt.Errorf("telegram: open segment: %w", err)
	}
	defer f.Close()
	return tr.Transcribe(ctx, filepath.Base(path), f)
}

// handleShowTranscript replies with the sender's last transcript.
func (b *Bot) handleShowTranscript(ctx context.Context, req *Request) error {
	if err := b.client.AnswerCallbackQuery(ctx, AnswerCallbackQueryRequest{CallbackQueryID: req.Callback.ID}); err != nil {
		b.logger.Debug("telegram: failed to answer callback query", "error", err)
	}
	if req.Message == nil {
		return nil
	}

	text, ok := b.transcripts.Get(req.ConversationKey())
	if !ok || text == "" {
		text = b.text.NoTranscript
	}
	if err := b.client.SendChatAction(ctx, req.ChatID(), req.ThreadID(), "typing"); err != nil {
		b.logger.Debug("telegram: chat action failed", "error", err)
	}
	for _, chunk := range relay.Chunk(text, b.cfg.MaxMessageLength) {
		if _, err := b.reply(ctx, req, chunk); err != nil {
			return err
		}
	}
	return nil
}
