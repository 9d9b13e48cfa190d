package s3

import "fmt"

var byteUnits = []string{"KB", "MB", "GB", "TB", "PB"}

// FormatBytes 將位元組數轉換為人類可讀的字串
func FormatBytes(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d bytes", size)
	}
	value := float64(size)
	unit := 0
	for value >= 1024 && unit < len(byteUnits) {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, byteUnits[unit-1])
}
