package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(capacity int) *Config {
	return &Config{Capacity: capacity, ExpiryDuration: 5 * time.Second}
}

func TestNewPoolInvalidConfig(t *testing.T) {
	if _, err := NewPool("bad", EmbeddingPool, &Config{Capacity: 0}); !errors.Is(err, ErrInvalidPoolConfig) {
		t.Errorf("期望 ErrInvalidPoolConfig, 实际 %v", err)
	}
}

func TestPoolSubmit(t *testing.T) {
	p, err := NewPool("test", BackgroundPool, testConfig(10))
	if err != nil {
		t.Fatalf("创建池失败: %v", err)
	}
	defer p.Release()

	var counter atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		}); err != nil {
			t.Errorf("提交任务失败: %v", err)
			wg.Done()
		}
	}
	wg.Wait()

	if counter.Load() != 100 {
		t.Errorf("任务执行数不匹配: 期望 100, 实际 %d", counter.Load())
	}
	if s := p.Stats(); s.SubmittedTasks != 100 {
		t.Errorf("提交计数不匹配: %d", s.SubmittedTasks)
	}
}

func TestSubmitAfterRelease(t *testing.T) {
	p, _ := NewPool("test", BackgroundPool, testConfig(1))
	p.Release()
	p.Release() // 重复释放无副作用

	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("期望 ErrPoolClosed, 实际 %v", err)
	}
}

func TestDo(t *testing.T) {
	p, _ := NewPool("embedding", EmbeddingPool, testConfig(2))
	defer p.Release()

	got, err := Do(context.Background(), p, func(ctx context.Context) ([]float32, error) {
		return []float32{1, 2, 3}, nil
	})
	if err != nil {
		t.Fatalf("Do 返回错误: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("结果不匹配: %v", got)
	}

	wantErr := errors.New("model down")
	_, err = Do(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("期望透传任务错误, 实际 %v", err)
	}
}

func TestDoPanicBecomesError(t *testing.T) {
	p, _ := NewPool("generation", GenerationPool, testConfig(1))
	defer p.Release()

	_, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		panic("boom")
	})
	if !errors.Is(err, ErrTaskPanic) {
		t.Errorf("期望 ErrTaskPanic, 实际 %v", err)
	}
	if p.Stats().PanicRecovered != 1 {
		t.Errorf("panic 计数不匹配: %d", p.Stats().PanicRecovered)
	}
}

func TestDoContextDeadline(t *testing.T) {
	p, _ := NewPool("generation", GenerationPool, testConfig(1))
	defer p.Release()

	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Do(ctx, p, func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("期望 DeadlineExceeded, 实际 %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Do 未在超时后及时返回")
	}
}

func TestGoLogsErrors(t *testing.T) {
	p, _ := NewPool("background", BackgroundPool, testConfig(1))
	defer p.Release()

	done := make(chan struct{})
	if err := Go(p, "evaluate", func() error {
		defer close(done)
		return errors.New("ignored")
	}); err != nil {
		t.Fatalf("Go 提交失败: %v", err)
	}
	<-done
}

func TestDefaultManager(t *testing.T) {
	m, err := NewDefaultManager(map[Type]*Config{GenerationPool: testConfig(3)})
	if err != nil {
		t.Fatalf("创建管理器失败: %v", err)
	}

	if got := m.Types(); len(got) != 3 {
		t.Fatalf("池数量不匹配: %v", got)
	}
	if c := m.MustGet(GenerationPool).Stats().Capacity; c != 3 {
		t.Errorf("生成池容量不匹配: 期望 3, 实际 %d", c)
	}
	if err := m.Register(EmbeddingPool, testConfig(1)); !errors.Is(err, ErrPoolAlreadyExists) {
		t.Errorf("期望 ErrPoolAlreadyExists, 实际 %v", err)
	}

	if err := m.ReleaseTimeout(time.Second); err != nil {
		t.Errorf("释放失败: %v", err)
	}
	if _, err := m.Get(EmbeddingPool); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("期望 ErrPoolClosed, 实际 %v", err)
	}
}
