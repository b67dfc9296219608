package model

// SchemaCapabilities 启动时探测一次的可选列，旧库未迁移时写入会跳过这些列
type SchemaCapabilities struct {
	LevelResultAvgResponseTime bool
	LevelResultAIPlan          bool
}

func FullSchema() SchemaCapabilities {
	return SchemaCapabilities{
		LevelResultAvgResponseTime: true,
		LevelResultAIPlan:          true,
	}
}
