package api

import "github.com/redis/go-redis/v9"

// RateLimitScript 用於執行固定時間窗的請求計數
//
//	KEYS[1] - 計數器的鍵（依呼叫端區分）
//	ARGV[1] - 時間窗長度（毫秒）
//
// 返回值:
//
//	{count, ttl} - 時間窗內累計的請求數，以及時間窗剩餘的毫秒數
//
// 流程:
//   - 1. 遞增計數器
//   - 2. 如果是時間窗內的第一個請求，設定過期時間
//   - 3. 回傳計數值與剩餘時間，由呼叫端決定是否超限
var RateLimitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)
