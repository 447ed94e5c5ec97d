package cache

import (
	"context"
	"errors"
	"time"
)

// MemoryStore 是进程内的易失缓存层，保存已解码的图片。实现可以在容量不足时
// 静默淘汰任意条目，调用方不能假设 Set 过的 key 一直存在。
type MemoryStore interface {
	// Get 返回 key 对应的图片；未写入或已淘汰时返回 false。
	Get(key string) (*CachedImage, bool)

	// Set 写入或覆盖 key 对应的图片，可能触发其它条目的淘汰。
	Set(key string, img *CachedImage)

	// Purge 清空全部条目，等价于一次内存压力导致的整体淘汰。
	Purge()

	// Len 返回当前条目数量。
	Len() int
}

// DiskStore 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CacheDir>/<sha256[0:2]>/<sha256>    # 图片原始字节
//
// 文件名由完整 key 的摘要派生，跨进程重启保持稳定。
type DiskStore interface {
	// Get 读取 key 对应的字节。不存在时返回 ErrNotFound，内容无法识别为图片时
	// 返回 ErrCorruptEntry。
	Get(ctx context.Context, key string) ([]byte, error)

	// Put 写入 key 对应的字节，按需创建目录，并通过临时文件 + rename 保证原子性。
	Put(ctx context.Context, key string, data []byte) (*Entry, error)

	// Remove 删除 key 对应的文件，不存在时不报错。
	Remove(ctx context.Context, key string) error

	// Path 返回 key 对应的文件路径，只依赖 key 本身。
	Path(key string) string
}

// Entry 描述一次成功写入的磁盘条目。
type Entry struct {
	Key       string    `json:"key"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// Source 标记一次查找结果来自哪一层。
type Source int

const (
	SourceNone Source = iota
	SourceMemory
	SourceDisk
	SourceNetwork
)

func (s Source) String() string {
	switch s {
	case SourceMemory:
		return "memory"
	case SourceDisk:
		return "disk"
	case SourceNetwork:
		return "network"
	default:
		return "none"
	}
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorruptEntry 表示磁盘条目存在但不是可识别的图片。
	ErrCorruptEntry = errors.New("cache entry is not a decodable image")
	// ErrDecode 表示待写入的字节无法解码为图片。
	ErrDecode = errors.New("image decode failed")
)
