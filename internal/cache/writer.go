package cache

import (
	"context"
	"errors"
)

// ErrStoreUnavailable 表示当前未注入磁盘缓存实例，只剩内存层可用。
var ErrStoreUnavailable = errors.New("disk store unavailable")

// WriteThrough 将一张新获取的图片同时写入内存层与磁盘层。
type WriteThrough struct {
	memory MemoryStore
	disk   DiskStore
}

// NewWriteThrough 构造写穿透写入器；disk 可以为 nil，此时只写内存。
func NewWriteThrough(memory MemoryStore, disk DiskStore) WriteThrough {
	return WriteThrough{memory: memory, disk: disk}
}

// DiskEnabled 返回当前是否具备磁盘写入能力。
func (w WriteThrough) DiskEnabled() bool {
	return w.disk != nil
}

// Put 先写内存再写磁盘。内存写入总会生效；返回的错误只描述磁盘写入失败，
// 调用方据此记录日志即可。
func (w WriteThrough) Put(ctx context.Context, img *CachedImage) (*Entry, error) {
	w.memory.Set(img.Key, img)
	if w.disk == nil {
		return nil, ErrStoreUnavailable
	}
	return w.disk.Put(ctx, img.Key, img.Raw)
}
