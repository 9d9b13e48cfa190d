package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ExchangeVerifier 驗證SSO callback帶回的授權回應
// 期望的state與nonce來自login階段存入Redis的紀錄，
// 兩者任一不符都視為回應遭到竄改或重放
type ExchangeVerifier struct {
	idTokenVerifier *oidc.IDTokenVerifier
	wantState       string
	wantNonce       string
}

// VerifyIDToken 驗證ID token的簽章與有效期
func (v *ExchangeVerifier) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	const op = "VerifyIDToken"
	idToken, err := v.idTokenVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	return idToken, nil
}

// VerifyState 回報callback帶回的state是否與login階段發出的一致
func (v *ExchangeVerifier) VerifyState(state string) bool {
	return state == v.wantState
}

// VerifyNonce 回報ID token中的nonce是否與login階段發出的一致
func (v *ExchangeVerifier) VerifyNonce(nonce string) bool {
	return nonce == v.wantNonce
}
