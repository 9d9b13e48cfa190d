package oidc

import "github.com/coreos/go-oidc/v3/oidc"

// IDToken 是SSO登入取回的ID token claims
// 只攤平本地帳號開通會用到的欄位：email作為本地帳號的關聯鍵、
// name與picture用來初始化個人資料；其餘claims可透過 Claims 取出
type IDToken struct {
	Subject       string `json:"sub"`
	Issuer        string `json:"iss"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
	Picture       string `json:"picture"`

	internal *oidc.IDToken
}

// Claims 將完整的ID token claims解析到v
func (i *IDToken) Claims(v any) error {
	return i.internal.Claims(v)
}
