package s3

// 車輛圖片允許的MIME類型與儲存時使用的副檔名
// 只收點陣圖格式；SVG這類可內嵌腳本的格式一律拒絕
var imageExtensionByMIME = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
	"image/webp": "webp",
}

// CheckSecureImageAndGetExtension 檢查MIME類型是否為允許的車輛圖片格式
// 並回傳儲存時使用的副檔名
func CheckSecureImageAndGetExtension(mimeType string) (bool, string) {
	ext, ok := imageExtensionByMIME[mimeType]
	return ok, ext
}
