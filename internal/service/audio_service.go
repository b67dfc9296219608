package service

import (
	"bytes"
	"context"
	"engz_backend/internal/config"
	"engz_backend/internal/util"
	"engz_backend/pkg/logger"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// AudioUpload 上传的录音
type AudioUpload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

type Transcription struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	URL      string  `json:"url,omitempty"`
}

// AudioService 录音校验、转码、存档与转写
type AudioService struct {
	Storage     *StorageService
	Transcriber Transcriber
	MaxSeconds  int

	// 便于测试替换
	Probe     func(path string) (*util.AudioInfo, error)
	Transcode func(inputPath, outputPath string) error
}

func NewAudioService(storage *StorageService, transcriber Transcriber, cfg config.SpeechConfig) *AudioService {
	return &AudioService{
		Storage:     storage,
		Transcriber: transcriber,
		MaxSeconds:  cfg.MaxAudioSeconds,
		Probe:       util.GetAudioInfo,
		Transcode:   util.TranscodeForSpeech,
	}
}

// Available 没有配置语音识别时不接受录音
func (s *AudioService) Available() bool {
	return s != nil && s.Transcriber != nil
}

func (s *AudioService) Transcribe(ctx context.Context, learnerID, missionID uint, upload AudioUpload) (*Transcription, error) {
	if !s.Available() {
		return nil, util.ErrAudioUnavailable
	}
	if !util.HasAllowedAudioExtension(upload.Filename) {
		return nil, fmt.Errorf("%w: unsupported audio file %q", util.ErrValidation, filepath.Base(upload.Filename))
	}
	if upload.Size > util.MaxAudioBytes {
		return nil, util.ErrAudioTooLong
	}

	// 先读文件头校验类型，再把完整内容写入临时文件
	head := make([]byte, 512)
	n, err := io.ReadFull(upload.Reader, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	head = head[:n]
	if _, err := util.ValidateAudioMimeType(bytes.NewReader(head)); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrValidation, err)
	}

	dir, err := os.MkdirTemp("", "engz-audio-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	ext := strings.ToLower(filepath.Ext(upload.Filename))
	srcPath := filepath.Join(dir, "source"+ext)
	if err := writeLimited(srcPath, io.MultiReader(bytes.NewReader(head), upload.Reader), util.MaxAudioBytes); err != nil {
		return nil, err
	}

	info, err := s.Probe(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrValidation, err)
	}
	if s.MaxSeconds > 0 && info.Duration > float64(s.MaxSeconds) {
		return nil, util.ErrAudioTooLong
	}

	flacPath := filepath.Join(dir, "speech.flac")
	if err := s.Transcode(srcPath, flacPath); err != nil {
		return nil, fmt.Errorf("transcode audio: %w", err)
	}
	flac, err := os.ReadFile(flacPath)
	if err != nil {
		return nil, err
	}

	text, err := s.Transcriber.Transcribe(ctx, flac)
	if err != nil {
		logger.Log.Warn("transcription failed", zap.Uint("missionId", missionID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", util.ErrGradingUnavailable, err)
	}

	result := &Transcription{Text: strings.TrimSpace(text), Duration: info.Duration}

	// 原始录音存档失败不影响评分
	if s.Storage != nil {
		url, err := s.Storage.UploadFile(ctx, AudioKey(learnerID, missionID, ext), srcPath, util.MimeAudio+strings.TrimPrefix(ext, "."))
		if err != nil {
			logger.Log.Warn("archive audio failed", zap.Uint("missionId", missionID), zap.Error(err))
		} else {
			result.URL = url
		}
	}
	return result, nil
}

func writeLimited(path string, r io.Reader, limit int64) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(r, limit+1))
	if err != nil {
		return err
	}
	if written > limit {
		return util.ErrAudioTooLong
	}
	return nil
}
