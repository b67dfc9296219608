package service

import (
	"context"
	"engz_backend/internal/config"
	"engz_backend/pkg/tracing"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
)

// Transcriber 把 16kHz 单声道 FLAC 转成文字
type Transcriber interface {
	Transcribe(ctx context.Context, flac []byte) (string, error)
	Close() error
}

// GCPTranscriber Google Cloud Speech-to-Text
type GCPTranscriber struct {
	client       *speech.Client
	languageCode string
}

func NewGCPTranscriber(ctx context.Context, cfg config.SpeechConfig) (*GCPTranscriber, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	lang := cfg.LanguageCode
	if lang == "" {
		lang = "en-US"
	}
	return &GCPTranscriber{client: client, languageCode: lang}, nil
}

func (t *GCPTranscriber) Transcribe(ctx context.Context, flac []byte) (string, error) {
	ctx, span := tracing.Tracer.Start(ctx, "speech.transcribe")
	defer span.End()
	span.SetAttributes(attribute.Int("audio.bytes", len(flac)))

	if len(flac) == 0 {
		return "", nil
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_FLAC,
			SampleRateHertz:            16000,
			AudioChannelCount:          1,
			LanguageCode:               t.languageCode,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: flac},
		},
	}

	op, err := t.client.LongRunningRecognize(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("speech recognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("speech recognize: %w", err)
	}
	return joinTranscript(resp.GetResults()), nil
}

func joinTranscript(results []*speechpb.SpeechRecognitionResult) string {
	var b strings.Builder
	for _, r := range results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		text := strings.TrimSpace(r.Alternatives[0].Transcript)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(text)
	}
	return b.String()
}

func (t *GCPTranscriber) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}
