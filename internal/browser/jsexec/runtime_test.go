package jsexec_test

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/procfilter/internal/browser/jsexec"
	"github.com/xkilldash9x/procfilter/internal/config"
)

func newRuntime(t *testing.T, cfg config.ScriptConfig) *jsexec.Runtime {
	t.Helper()
	rt := jsexec.NewRuntime(cfg, zaptest.NewLogger(t))
	rt.Start()
	t.Cleanup(rt.Stop)
	return rt
}

func defaultRuntime(t *testing.T) *jsexec.Runtime {
	return newRuntime(t, config.NewDefaultConfig().Script)
}

func TestExecute_Basic(t *testing.T) {
	rt := defaultRuntime(t)

	result, err := rt.Execute(context.Background(), `(5 + 5) * 2`)
	require.NoError(t, err)
	// Goja returns numbers as int64
	assert.Equal(t, int64(20), result)
	assert.NotEmpty(t, rt.RunID())
}

func TestExecute_ReturnObject(t *testing.T) {
	rt := defaultRuntime(t)

	result, err := rt.Execute(context.Background(), `({status: "success", code: 200})`)
	require.NoError(t, err)

	resMap, ok := result.(map[string]interface{})
	require.True(t, ok, "Result should be a map")
	assert.Equal(t, "success", resMap["status"])
	assert.Equal(t, int64(200), resMap["code"])
}

func TestExecute_PersistentGlobals(t *testing.T) {
	rt := defaultRuntime(t)
	ctx := context.Background()

	_, err := rt.Execute(ctx, `var counter = 1;`)
	require.NoError(t, err)
	result, err := rt.Execute(ctx, `counter + 1`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result)
}

func TestExecute_Promise(t *testing.T) {
	rt := defaultRuntime(t)

	result, err := rt.Execute(context.Background(), `Promise.resolve(7)`)
	require.NoError(t, err)
	assert.Equal(t, int64(7), result)

	_, err = rt.Execute(context.Background(), `Promise.reject("nope")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promise rejected")
}

func TestExecute_Exception(t *testing.T) {
	rt := defaultRuntime(t)

	_, err := rt.Execute(context.Background(), `throw new Error("Intentional Error");`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "javascript exception:")
	assert.Contains(t, err.Error(), "Intentional Error")
}

func TestExecute_Timeout(t *testing.T) {
	cfg := config.NewDefaultConfig().Script
	cfg.Timeout = 100 * time.Millisecond
	rt := newRuntime(t, cfg)

	startTime := time.Now()
	_, err := rt.Execute(context.Background(), `while(true) {}`)
	duration := time.Since(startTime)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "javascript execution interrupted:")
	assert.Less(t, duration, time.Second)

	// The VM stays usable after an interrupt.
	result, err := rt.Execute(context.Background(), `1 + 1`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result)
}

func TestExecute_Cancellation(t *testing.T) {
	rt := defaultRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() {
		_, err := rt.Execute(ctx, `while(true) {}`)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "javascript execution interrupted:")
		assert.Contains(t, err.Error(), context.Canceled.Error())
	case <-time.After(time.Second):
		t.Fatal("Execution did not stop after cancellation")
	}
}

func TestSchedule_RunsAfterCurrentScript(t *testing.T) {
	rt := defaultRuntime(t)
	ctx := context.Background()

	var order []string
	require.NoError(t, rt.Bind(ctx, func(vm *goja.Runtime) error {
		if err := vm.Set("mark", func(s string) { order = append(order, s) }); err != nil {
			return err
		}
		return vm.Set("later", func(s string) {
			rt.Schedule(func() {
				order = append(order, s)
				rt.Schedule(func() { order = append(order, s+"-nested") })
			})
		})
	}))

	_, err := rt.Execute(ctx, `later("task"); mark("script");`)
	require.NoError(t, err)
	require.NoError(t, rt.Settle(ctx))

	assert.Equal(t, []string{"script", "task", "task-nested"}, order)
	assert.Equal(t, int64(0), rt.Pending())
}

func TestSchedule_PanicIsContained(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rt := jsexec.NewRuntime(config.NewDefaultConfig().Script, zap.New(core))
	rt.Start()
	defer rt.Stop()

	rt.Schedule(func() { panic("boom") })
	ran := false
	rt.Schedule(func() { ran = true })

	require.NoError(t, rt.Settle(context.Background()))
	assert.True(t, ran)
	assert.Equal(t, 1, logs.FilterMessage("Scheduled task panicked.").Len())
}

func TestConsole_RoutedToLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rt := jsexec.NewRuntime(config.NewDefaultConfig().Script, zap.New(core))
	rt.Start()
	defer rt.Stop()

	_, err := rt.Execute(context.Background(), `console.log("hello from filters"); console.warn("careful")`)
	require.NoError(t, err)

	entries := logs.FilterMessage("hello from filters").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "jsexec.console", entries[0].LoggerName)
	assert.Equal(t, 1, logs.FilterMessage("careful").FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestStoppedRuntime(t *testing.T) {
	rt := jsexec.NewRuntime(config.NewDefaultConfig().Script, zaptest.NewLogger(t))
	rt.Start()
	rt.Stop()

	_, err := rt.Execute(context.Background(), `1`)
	assert.ErrorIs(t, err, jsexec.ErrStopped)
	assert.ErrorIs(t, rt.Settle(context.Background()), jsexec.ErrStopped)

	rt.Schedule(func() {})
	assert.Equal(t, int64(0), rt.Pending())
}
