package generation

import (
	"context"
	"errors"

	"text2image-service/internal/upstream"
)

// Transport 发送 JSON 请求的能力，由 upstream.Client 实现
type Transport interface {
	Post(ctx context.Context, path string, body interface{}) (*upstream.RawResponse, error)
}

// Pipeline 串起请求转换、网络调用与响应归一化。所有失败都收敛为 error 状态
type Pipeline struct {
	Transport  Transport
	Path       string
	Normalizer *Normalizer
}

func NewPipeline(transport Transport, path string, sink RecordSink) *Pipeline {
	return &Pipeline{
		Transport:  transport,
		Path:       path,
		Normalizer: &Normalizer{Sink: sink},
	}
}

// Generate 执行一次完整的生成调用。req 应已调用过 WithDefaults
func (p *Pipeline) Generate(ctx context.Context, req Request) Outcome {
	raw, err := p.Transport.Post(ctx, p.Path, Translate(req))
	if err != nil {
		return TransportOutcome(err)
	}
	return p.Normalizer.Normalize(raw, req)
}

// TransportOutcome 把传输层错误转换为 error 状态
func TransportOutcome(err error) Outcome {
	var te *upstream.TransportError
	if !errors.As(err, &te) {
		te = upstream.Classify(err)
	}
	return Failed(FailureTransport, te.Message())
}
