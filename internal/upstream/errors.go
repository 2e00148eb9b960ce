package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// TransportKind 传输层失败的原因
type TransportKind string

const (
	KindConnectionRefused TransportKind = "connection_refused"
	KindDNS               TransportKind = "dns"
	KindTimeout           TransportKind = "timeout"
	KindNetwork           TransportKind = "network"
	KindUnknown           TransportKind = "unknown"
)

var kindMessages = map[TransportKind]string{
	KindConnectionRefused: "无法连接到服务器，请检查网络连接",
	KindDNS:               "DNS解析失败，请检查网络连接",
	KindTimeout:           "请求超时，请稍后重试",
	KindNetwork:           "网络错误，请检查网络连接",
}

// TransportError 请求未得到任何 HTTP 响应
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Message 返回面向用户的提示
func (e *TransportError) Message() string {
	if msg, ok := kindMessages[e.Kind]; ok {
		return msg
	}
	if e.Err != nil && e.Err.Error() != "" {
		return e.Err.Error()
	}
	return "未知错误"
}

// Classify 把底层错误归类为 TransportError
func Classify(err error) *TransportError {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Kind: classifyKind(err), Err: err}
}

func classifyKind(err error) TransportKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}
	return KindUnknown
}
