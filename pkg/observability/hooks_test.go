package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Mirror hooks
	m := NoopMirrorHooks{}
	m.OnCycleStart(ctx, "id", "https://rubygems.org/")
	m.OnIndexRefresh(ctx, "specs", 1000, time.Second, nil)
	m.OnItemComplete(ctx, "fetch", errors.New("boom"))
	m.OnPhaseComplete(ctx, "fetch", 10, 1, time.Second)
	m.OnCycleComplete(ctx, "id", 1, time.Minute, nil)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "index")
	c.OnCacheMiss(ctx, "index")
	c.OnCacheSet(ctx, "index", 1024)

	// HTTP hooks
	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "rubygems.org", "/specs.4.8.gz")
	h.OnResponse(ctx, "GET", "rubygems.org", "/specs.4.8.gz", 200, time.Second)
	h.OnError(ctx, "GET", "rubygems.org", "/specs.4.8.gz", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Mirror().(NoopMirrorHooks); !ok {
		t.Error("Mirror() should return NoopMirrorHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customMirror := &testMirrorHooks{}
	SetMirrorHooks(customMirror)
	if Mirror() != customMirror {
		t.Error("SetMirrorHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Reset()
	if _, ok := Mirror().(NoopMirrorHooks); !ok {
		t.Error("Reset() should restore NoopMirrorHooks")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("Reset() should restore NoopHTTPHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testMirrorHooks{}
	SetMirrorHooks(custom)
	SetMirrorHooks(nil)

	if Mirror() != custom {
		t.Error("SetMirrorHooks(nil) should be ignored")
	}
}

type testMirrorHooks struct{ NoopMirrorHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
