package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmSymbolsCollectsPerSymbolErrors(t *testing.T) {
	factory := &trackingFactory{}
	p := New(testCfg(), factory.new, testCVD(t), 1)
	defer p.Stop()

	// Nothing ever scripts a symbol_resolved reply, so resolving "NSE:TCS"
	// runs out the clock on ctx; WarmSymbols should record that as a
	// per-symbol error rather than stopping early.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	results := p.WarmSymbols(ctx, []string{"NSE:TCS"}, "1D", 1)
	require.Len(t, results, 1)
	assert.Error(t, results["NSE:TCS"])
}
