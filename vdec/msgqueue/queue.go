// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package msgqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cnotch/av1vdec/vdec"
	"github.com/cnotch/queue"
	"github.com/cnotch/xlog"
)

// 帧上下文缓冲的默认参数
const (
	DefaultDepth   = 9 // 同时在途的最大帧数，等于参考槽数量
	DefaultUbeSize = 8 * 1024 * 1024
	ErrMapSize     = 17 * 1024
	RdMvSize       = ((4096*2304)>>4 + 1024) << 1
	TileSize       = 64 * 4096
)

// LatBuf 一帧在 LAT 与 CORE 之间传递的上下文，拥有自己的 rd_mv、错误图和 tile 缓冲
type LatBuf struct {
	Index   int
	RdMv    vdec.Mem
	ErrMap  vdec.Mem
	Tile    vdec.Mem
	Private interface{} // 编解码器私有的帧参数
}

// CoreFunc 在 CORE 协程中处理一帧，返回后帧上下文自动归还
type CoreFunc func(lb *LatBuf)

// Config 消息队列配置
type Config struct {
	Depth   int
	UbeSize uint64
	Core    CoreFunc
	Logger  *xlog.Logger
}

// Queue 帧上下文池与 CORE 工作队列
type Queue struct {
	alloc  vdec.Allocator
	ring   *Ring
	bufs   []*LatBuf
	free   chan *LatBuf
	core   *queue.SyncQueue
	coreFn CoreFunc
	closed int32
	done   chan struct{}
	once   sync.Once
	logger *xlog.Logger
}

// New 分配 UBE 与帧上下文缓冲，并启动 CORE 协程
func New(alloc vdec.Allocator, c Config) (*Queue, error) {
	if c.Core == nil {
		return nil, fmt.Errorf("msgqueue: nil core func: %w", vdec.ErrInvalidParam)
	}
	if c.Depth <= 0 {
		c.Depth = DefaultDepth
	}
	if c.UbeSize == 0 {
		c.UbeSize = DefaultUbeSize
	}
	if c.Logger == nil {
		c.Logger = xlog.L()
	}

	q := &Queue{
		alloc:  alloc,
		free:   make(chan *LatBuf, c.Depth),
		core:   queue.NewSyncQueue(),
		coreFn: c.Core,
		done:   make(chan struct{}),
		logger: c.Logger,
	}
	if err := q.allocate(c); err != nil {
		q.freeMem()
		return nil, err
	}

	go q.consume()
	return q, nil
}

// allocate 分配 UBE 和每个帧上下文的缓冲
func (q *Queue) allocate(c Config) (err error) {
	ube, err := q.alloc.Alloc(c.UbeSize)
	if err != nil {
		return fmt.Errorf("msgqueue: ube: %w", err)
	}
	q.ring = NewRing(ube)

	for i := 0; i < c.Depth; i++ {
		lb := &LatBuf{Index: i}
		q.bufs = append(q.bufs, lb)
		if lb.RdMv, err = q.alloc.Alloc(RdMvSize); err != nil {
			return fmt.Errorf("msgqueue: rd_mv %d: %w", i, err)
		}
		if lb.ErrMap, err = q.alloc.Alloc(ErrMapSize); err != nil {
			return fmt.Errorf("msgqueue: err map %d: %w", i, err)
		}
		if lb.Tile, err = q.alloc.Alloc(TileSize); err != nil {
			return fmt.Errorf("msgqueue: tile %d: %w", i, err)
		}
		q.free <- lb
	}
	return nil
}

// Ring UBE 环形缓冲
func (q *Queue) Ring() *Ring { return q.ring }

// Depth 帧上下文数量
func (q *Queue) Depth() int { return len(q.bufs) }

// Free 当前空闲的帧上下文数量
func (q *Queue) Free() int { return len(q.free) }

// Dequeue 取一个空闲的帧上下文；wait 为 0 时不等待
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*LatBuf, error) {
	if atomic.LoadInt32(&q.closed) != 0 {
		return nil, vdec.ErrClosed
	}

	select {
	case lb := <-q.free:
		return lb, nil
	default:
	}
	if wait <= 0 {
		return nil, fmt.Errorf("no free lat buffer: %w", vdec.ErrBusy)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case lb := <-q.free:
		return lb, nil
	case <-timer.C:
		return nil, fmt.Errorf("no free lat buffer in %v: %w", wait, vdec.ErrBusy)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueueCore 把帧上下文交给 CORE 协程
func (q *Queue) QueueCore(lb *LatBuf) {
	q.core.Push(lb)
}

// Release 归还帧上下文，Private 保留以便复用
func (q *Queue) Release(lb *LatBuf) {
	select {
	case q.free <- lb:
	default:
		q.logger.Errorf("lat buffer %d released twice", lb.Index)
	}
}

// WaitIdle 等待全部帧上下文归还，即没有在途的 CORE 工作
func (q *Queue) WaitIdle(ctx context.Context) error {
	return q.WaitCore(ctx, 0)
}

// WaitCore 等待除调用者持有的 held 个之外的帧上下文全部归还
func (q *Queue) WaitCore(ctx context.Context, held int) error {
	want := len(q.bufs) - held
	taken := make([]*LatBuf, 0, want)
	defer func() {
		for _, lb := range taken {
			q.free <- lb
		}
	}()

	for len(taken) < want {
		select {
		case lb := <-q.free:
			taken = append(taken, lb)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// InFlight 已取出尚未归还的帧上下文数量
func (q *Queue) InFlight() int { return len(q.bufs) - len(q.free) }

// Close 停止 CORE 协程并释放缓冲；调用前应先 WaitIdle
func (q *Queue) Close() error {
	q.once.Do(func() {
		atomic.StoreInt32(&q.closed, 1)
		for stopped := false; !stopped; {
			q.core.Signal()
			select {
			case <-q.done:
				stopped = true
			case <-time.After(10 * time.Millisecond):
			}
		}
		q.core.Reset()
		q.freeMem()
	})
	return nil
}

func (q *Queue) freeMem() {
	for _, lb := range q.bufs {
		q.alloc.Free(&lb.RdMv)
		q.alloc.Free(&lb.ErrMap)
		q.alloc.Free(&lb.Tile)
	}
	if q.ring != nil {
		q.alloc.Free(&q.ring.mem)
	}
}

func (q *Queue) consume() {
	defer close(q.done)

	for atomic.LoadInt32(&q.closed) == 0 {
		item := q.core.Pop()
		if item == nil {
			continue
		}
		q.run(item.(*LatBuf))
	}
}

func (q *Queue) run(lb *LatBuf) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorf("core routine panic；r = %v \n %s", r, debug.Stack())
		}
		q.Release(lb)
	}()
	q.coreFn(lb)
}
