package util

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// 浏览器录音常见封装，DetectContentType 会把 webm/m4a 识别成 video
var audioContainerTypes = []string{MimeAudio, "video/webm", "video/mp4", "application/ogg"}

// ValidateAudioMimeType 读取文件头判断是否为音频
func ValidateAudioMimeType(reader io.Reader) (string, error) {
	buffer := make([]byte, 512)
	n, err := reader.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])
	if IsAudio(mimeType) {
		return mimeType, nil
	}

	return mimeType, errors.New("invalid audio type: " + mimeType)
}

func IsAudio(mimeType string) bool {
	for _, allowed := range audioContainerTypes {
		if strings.HasPrefix(mimeType, allowed) {
			return true
		}
	}
	return false
}

func HasAllowedAudioExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedAudioExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
