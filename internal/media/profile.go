package media

import "fmt"

// Profile 栅格化与压缩参数
type Profile struct {
	Name            string
	DPI             int // PDF 栅格化分辨率
	MaxDim          int // 长边上限（像素）
	Quality         int // 首次 JPEG 质量
	FallbackQuality int // 超过 MaxBytes 时重新编码使用的质量
	MaxBytes        int // 编码后大小上限
}

const maxPayloadBytes = 3 * 1024 * 1024

// ConservativeProfile 120 DPI / 800px / q75，请求体小，接口不容易拒绝
func ConservativeProfile() Profile {
	return Profile{
		Name:            "conservative",
		DPI:             120,
		MaxDim:          800,
		Quality:         75,
		FallbackQuality: 60,
		MaxBytes:        maxPayloadBytes,
	}
}

// LegibleProfile 200 DPI / 2048px / q85，小字识别更准，请求体更大
func LegibleProfile() Profile {
	return Profile{
		Name:            "legible",
		DPI:             200,
		MaxDim:          2048,
		Quality:         85,
		FallbackQuality: 60,
		MaxBytes:        maxPayloadBytes,
	}
}

// ProfileByName 按名称查找预设，空串返回 conservative
func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", "conservative":
		return ConservativeProfile(), nil
	case "legible":
		return LegibleProfile(), nil
	}
	return Profile{}, fmt.Errorf("未知的图片预设 %q（可选 conservative / legible）", name)
}
