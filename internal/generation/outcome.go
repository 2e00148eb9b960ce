package generation

// Status 生成结果所处的状态
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Failure 区分失败的来源
type Failure string

const (
	FailureTransport   Failure = "transport"
	FailureUpstream    Failure = "upstream"
	FailureNoImageData Failure = "no_image_data"
	FailureBusy        Failure = "busy"
)

const (
	MessageNoImageData = "未在响应中找到图片数据"
	MessageUpstream    = "API调用失败"
	MessageBusy        = "服务器繁忙，请稍后再试"
)

// Outcome 一次生成尝试的结果，同一时刻只处于一种状态
type Outcome struct {
	Status  Status        `json:"status"`
	Images  []ImageRecord `json:"images"`
	Error   string        `json:"error,omitempty"`
	Failure Failure       `json:"failure,omitempty"`
}

func Idle() Outcome       { return Outcome{Status: StatusIdle} }
func Generating() Outcome { return Outcome{Status: StatusGenerating} }

func Succeeded(images []ImageRecord) Outcome {
	return Outcome{Status: StatusSuccess, Images: images}
}

func Failed(kind Failure, message string) Outcome {
	return Outcome{Status: StatusError, Error: message, Failure: kind}
}

// Terminal 表示结果不会再变化
func (o Outcome) Terminal() bool {
	return o.Status == StatusSuccess || o.Status == StatusError
}
