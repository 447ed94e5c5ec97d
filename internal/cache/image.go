package cache

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// CachedImage 是内存层持有的已解码图片。Pixels 与 Raw 均视为只读，
// 缓存可能随时替换或丢弃自己的那份引用。
type CachedImage struct {
	Key    string
	Format string
	Bounds image.Rectangle
	Pixels image.Image
	Raw    []byte
}

// Decode 将原始字节解码为 CachedImage，失败时返回包装了 ErrDecode 的错误。
func Decode(key string, data []byte) (*CachedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &CachedImage{
		Key:    key,
		Format: format,
		Bounds: img.Bounds(),
		Pixels: img,
		Raw:    data,
	}, nil
}

// sniffImage 只解析图片头部，用于在读取磁盘条目时快速排除损坏文件。
func sniffImage(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}

// ContentType 返回图片格式对应的 MIME 类型。
func (img *CachedImage) ContentType() string {
	switch img.Format {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
