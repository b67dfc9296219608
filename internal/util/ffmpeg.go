package util

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// AudioInfo 音频元数据
type AudioInfo struct {
	Duration   float64 `json:"duration"` // 秒
	Codec      string  `json:"codec"`
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
}

// GetAudioInfo 使用ffmpeg-go读取音频流信息
func GetAudioInfo(path string) (*AudioInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("音频文件不存在: %v", err)
	}

	jsonOutput, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("获取音频信息失败: %v", err)
	}

	return parseProbeOutput(jsonOutput)
}

func parseProbeOutput(jsonOutput string) (*AudioInfo, error) {
	var result struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("解析音频信息失败: %v", err)
	}

	info := &AudioInfo{}
	found := false
	for _, stream := range result.Streams {
		if stream.CodecType == "audio" {
			info.Codec = stream.CodecName
			info.Channels = stream.Channels
			info.SampleRate, _ = strconv.Atoi(stream.SampleRate)
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("文件中没有音频流")
	}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		duration = 0
	}
	info.Duration = duration

	return info, nil
}

// TranscodeForSpeech 转成 16kHz 单声道 FLAC，语音识别对采样率有要求
func TranscodeForSpeech(inputPath, outputPath string) error {
	return ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{
			"ac": "1",
			"ar": "16000",
			"c:a": "flac",
		}).
		OverWriteOutput().
		Run()
}
