package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	o := New()
	if o.CacheThreshold != 5 {
		t.Errorf("CacheThreshold = %d, want 5", o.CacheThreshold)
	}
	if o.CacheSize != 100 {
		t.Errorf("CacheSize = %d, want 100", o.CacheSize)
	}
	if o.NotificationQueueSize != 0 {
		t.Errorf("NotificationQueueSize = %d, want 0 (unbounded)", o.NotificationQueueSize)
	}
	if o.ConnectTimeout != 30*time.Second {
		t.Errorf("ConnectTimeout = %v, want 30s", o.ConnectTimeout)
	}
	if o.Logger == nil {
		t.Error("Logger is nil, want the default silent logger")
	}
	if o.RuntimeParams == nil {
		t.Error("RuntimeParams is nil, want an initialized empty map")
	}
}

func TestOptionsApplyOverDefaults(t *testing.T) {
	o := New(
		WithUser("alice"),
		WithDatabase("orders"),
		WithPassword([]byte("s3cret")),
		WithApplicationName("billingd"),
		WithTimeZone("UTC"),
		WithCacheThreshold(10),
		WithCacheSize(50),
		WithNotificationQueueSize(200),
		WithConnectTimeout(5*time.Second),
	)
	if o.User != "alice" || o.Database != "orders" || string(o.Password) != "s3cret" {
		t.Errorf("identity options not applied: %+v", o)
	}
	if o.ApplicationName != "billingd" || o.TimeZone != "UTC" {
		t.Errorf("session options not applied: %+v", o)
	}
	if o.CacheThreshold != 10 || o.CacheSize != 50 || o.NotificationQueueSize != 200 {
		t.Errorf("cache/queue sizing not applied: %+v", o)
	}
	if o.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want 5s", o.ConnectTimeout)
	}
}

func TestWithRuntimeParamAccumulates(t *testing.T) {
	o := New(
		WithRuntimeParam("search_path", "public"),
		WithRuntimeParam("statement_timeout", "5000"),
	)
	if o.RuntimeParams["search_path"] != "public" || o.RuntimeParams["statement_timeout"] != "5000" {
		t.Errorf("RuntimeParams = %v, want both params set", o.RuntimeParams)
	}
}

func TestWithCacheThresholdZeroDisablesPromotion(t *testing.T) {
	o := New(WithCacheThreshold(0))
	if o.CacheThreshold != 0 {
		t.Errorf("CacheThreshold = %d, want 0", o.CacheThreshold)
	}
}

func TestWithPasswordPrepareOverridesDefault(t *testing.T) {
	called := false
	custom := func(password []byte) (string, bool) {
		called = true
		return string(password), false
	}
	o := New(WithPasswordPrepare(custom))
	if o.PasswordPrepare == nil {
		t.Fatal("PasswordPrepare is nil after WithPasswordPrepare")
	}
	o.PasswordPrepare([]byte("x"))
	if !called {
		t.Error("the custom PasswordPreparer was never invoked")
	}
}
