package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// 音频上传相关常量
const (
	MimeAudio       = "audio/"
	MimeOctetStream = "application/octet-stream"
	MaxAudioBytes   = 20 << 20
)

var (
	AllowedAudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".webm", ".flac"}
)
