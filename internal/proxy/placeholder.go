package proxy

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

const placeholderSize = 8

var (
	placeholderOnce  sync.Once
	placeholderBytes []byte
)

// Placeholder 返回未命中时展示的浅灰色 PNG。
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		canvas := image.NewGray(image.Rect(0, 0, placeholderSize, placeholderSize))
		for y := 0; y < placeholderSize; y++ {
			for x := 0; x < placeholderSize; x++ {
				canvas.SetGray(x, y, color.Gray{Y: 0xe0})
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, canvas); err == nil {
			placeholderBytes = buf.Bytes()
		}
	})
	return placeholderBytes
}
