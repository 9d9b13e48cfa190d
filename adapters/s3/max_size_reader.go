package s3

import (
	"fmt"
	"io"
)

var ErrReachLimitType *ReachLimitError

// ReachLimitError 代表上傳的圖片超出大小限制
type ReachLimitError struct {
	MaxBytes int64
}

func (e *ReachLimitError) Error() string {
	return fmt.Sprintf("image exceeds the upload limit of %s", FormatBytes(e.MaxBytes))
}

// NewMaxSizeReader 包裝圖片上傳請求的body並限制可讀取的總量
// 超出 maxSize 時回傳 ReachLimitError，讓呼叫端在整張圖片
// 讀進記憶體之前就拒絕過大的上傳
func NewMaxSizeReader(r io.Reader, maxSize int64) io.Reader {
	return &maxSizeReader{reader: r, limit: maxSize, remaining: maxSize}
}

type maxSizeReader struct {
	reader    io.Reader
	limit     int64 // 允許讀取的總量
	remaining int64 // 尚可讀取的量
}

func (r *maxSizeReader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	// 最多只需要比剩餘配額多讀一個byte，就能判斷是否超量
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err = r.reader.Read(p)

	if int64(n) <= r.remaining {
		r.remaining -= int64(n)
		return n, err
	}

	// 讀到的量超出剩餘配額，截斷到配額並回報超限
	n = int(r.remaining)
	r.remaining = 0
	return n, &ReachLimitError{r.limit}
}
