package layout

import (
	"fmt"
	"math"

	qrcode "github.com/skip2/go-qrcode"
)

// qrDPI 是二维码栅格化的目标分辨率。
const qrDPI = 300

// EncodeQR 将内容编码为 PNG 二维码，边长按 300dpi 由 mm 换算为像素。
func EncodeQR(content string, sizeMM float64) ([]byte, error) {
	px := int(math.Ceil(sizeMM / 25.4 * qrDPI))
	if px < 64 {
		px = 64
	}
	png, err := qrcode.Encode(content, qrcode.Medium, px)
	if err != nil {
		return nil, fmt.Errorf("生成二维码失败: %w", err)
	}
	return png, nil
}
