package sources

import (
	"fmt"
	"sync"
	"testing"

	"tabula/errors"
	"tabula/schema"
)

// TestRegistry_ConcurrentMapBuild
//
// 多个 goroutine 并发首次调用 Map()，验证 -race 下构建只发生一次、
// 所有调用者拿到同一张表、表内查找全部命中。
func TestRegistry_ConcurrentMapBuild(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"books", "videos", "albums"} {
		if err := r.Register(schema.New(name).MustCompile()); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	const goroutines = 32

	maps := make([]*SourceMap, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(idx int) {
			defer wg.Done()
			maps[idx] = r.Map()
		}(g)
	}
	wg.Wait()

	for idx, m := range maps {
		if m != maps[0] {
			t.Fatalf("goroutine %d got a different map instance", idx)
		}
	}
	if maps[0].Len() != 3 {
		t.Fatalf("unexpected map size: %d", maps[0].Len())
	}
	for _, name := range []string{"books", "videos", "albums"} {
		if _, ok := maps[0].LookupSource(name); !ok {
			t.Fatalf("lookup miss for %s", name)
		}
	}
}

// TestRegistry_ConcurrentRegisterAndMap
//
// 注册与首次构建并发交错。锁内双重检查保证的不变量：注册成功的
// 描述符必然在最终的分发表里；构建之后的注册必然以 DISPATCH_REBUILD
// 失败。两种结局之外不存在第三种。
func TestRegistry_ConcurrentRegisterAndMap(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(schema.New("seed").MustCompile()); err != nil {
		t.Fatalf("register seed: %v", err)
	}

	const writers = 16

	registerErrs := make([]error, writers)
	var wg sync.WaitGroup
	wg.Add(writers * 2)
	for g := 0; g < writers; g++ {
		name := fmt.Sprintf("source_%02d", g)
		go func(idx int, source string) {
			defer wg.Done()
			registerErrs[idx] = r.Register(schema.New(source).MustCompile())
		}(g, name)
		go func() {
			defer wg.Done()
			if m := r.Map(); m == nil {
				t.Error("Map returned nil")
			}
		}()
	}
	wg.Wait()

	final := r.Map()
	for g := 0; g < writers; g++ {
		name := fmt.Sprintf("source_%02d", g)
		err := registerErrs[g]
		_, inMap := final.LookupSource(name)
		switch {
		case err == nil && !inMap:
			t.Fatalf("%s registered successfully but is missing from the map", name)
		case err != nil && !errors.IsErrorCode(err, errors.ErrCodeDispatchRebuild):
			t.Fatalf("%s failed with unexpected error: %v", name, err)
		case err != nil && inMap:
			t.Fatalf("%s was rejected but still ended up in the map", name)
		}
	}
	if _, ok := final.LookupSource("seed"); !ok {
		t.Fatalf("seed descriptor missing from the map")
	}
}
