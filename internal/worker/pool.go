package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"text2image-service/internal/generation"
	"text2image-service/internal/upstream"
)

// Generator 执行一次生成调用，由 generation.Pipeline 实现
type Generator interface {
	Generate(ctx context.Context, req generation.Request) generation.Outcome
}

// Job 一次生成任务。OnDone 在结果产生后于 worker 协程中调用
type Job struct {
	SessionID string
	Request   generation.Request
	OnDone    func(generation.Outcome)

	done    chan struct{}
	outcome generation.Outcome
}

func NewJob(sessionID string, req generation.Request, onDone func(generation.Outcome)) *Job {
	return &Job{
		SessionID: sessionID,
		Request:   req,
		OnDone:    onDone,
		done:      make(chan struct{}),
	}
}

// Done 在任务完成后关闭
func (j *Job) Done() <-chan struct{} { return j.done }

// Outcome 仅在 Done 关闭后有效
func (j *Job) Outcome() generation.Outcome { return j.outcome }

// Pool 任务池结构
type Pool struct {
	workerCount int
	timeout     time.Duration
	generator   Generator
	queue       chan *Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewPool(generator Generator, workerCount, queueSize int, timeout time.Duration) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workerCount: workerCount,
		timeout:     timeout,
		generator:   generator,
		queue:       make(chan *Job, queueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 启动所有 Worker
func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	slog.Info("Worker 池已启动", "workers", p.workerCount)
}

// Stop 不再接收新任务，等待队列中的任务全部完成
func (p *Pool) Stop() {
	close(p.queue)
	p.wg.Wait()
	p.cancel()
	slog.Info("Worker 池已停止")
}

// Submit 提交任务到队列，队列已满时返回 false
func (p *Pool) Submit(job *Job) bool {
	select {
	case p.queue <- job:
		return true
	default:
		return false
	}
}

// Pending 队列中等待执行的任务数
func (p *Pool) Pending() int {
	return len(p.queue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		p.process(id, job)
	}
}

// process 执行任务。任务不受提交方请求的取消影响，只受超时约束
func (p *Pool) process(id int, job *Job) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	outcome := p.generator.Generate(ctx, job.Request)
	if outcome.Status == generation.StatusError && errors.Is(ctx.Err(), context.DeadlineExceeded) && outcome.Failure == generation.FailureTransport {
		outcome = generation.TransportOutcome(&upstream.TransportError{Kind: upstream.KindTimeout, Err: ctx.Err()})
	}

	slog.Info("生成任务完成",
		"worker", id,
		"session", job.SessionID,
		"status", outcome.Status,
		"images", len(outcome.Images),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	job.outcome = outcome
	if job.OnDone != nil {
		job.OnDone(outcome)
	}
	close(job.done)
}
