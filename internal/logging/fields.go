package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CacheFields 描述一次缓存操作涉及的 key 与缓存层。
func CacheFields(key, source string) logrus.Fields {
	return logrus.Fields{
		"key":    key,
		"source": source,
	}
}

// RequestFields 在 CacheFields 基础上附加请求 ID，供 HTTP 层日志复用。
func RequestFields(requestID, key, source string) logrus.Fields {
	fields := CacheFields(key, source)
	fields["request_id"] = requestID
	return fields
}
