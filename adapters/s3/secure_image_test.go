package s3_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"carhut/adapters/s3"
)

func TestCheckSecureImageAndGetExtension(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		wantOk   bool
		wantExt  string
	}{
		{
			name:     "JPEG車輛照片",
			mimeType: "image/jpeg",
			wantOk:   true,
			wantExt:  "jpeg",
		},
		{
			name:     "PNG車輛照片",
			mimeType: "image/png",
			wantOk:   true,
			wantExt:  "png",
		},
		{
			name:     "WebP車輛照片",
			mimeType: "image/webp",
			wantOk:   true,
			wantExt:  "webp",
		},
		{
			name:     "可內嵌腳本的SVG被拒絕",
			mimeType: "image/svg+xml",
			wantOk:   false,
			wantExt:  "",
		},
		{
			name:     "非圖片類型被拒絕",
			mimeType: "application/pdf",
			wantOk:   false,
			wantExt:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotOk, gotExt := s3.CheckSecureImageAndGetExtension(tt.mimeType)
			assert.Equal(t, tt.wantOk, gotOk)
			assert.Equal(t, tt.wantExt, gotExt)
		})
	}
}
