package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForTokenReturnsSamePoolForSameToken(t *testing.T) {
	factory := &trackingFactory{}
	cvd := testCVD(t)

	p1 := ForToken("tok-a", testCfg(), factory.new, cvd, 1)
	p2 := ForToken("tok-a", testCfg(), factory.new, cvd, 1)
	assert.Same(t, p1, p2)

	p3 := ForToken("tok-b", testCfg(), factory.new, cvd, 1)
	assert.NotSame(t, p1, p3)

	Forget("tok-a")
	Forget("tok-b")
}

func TestForgetStopsAndRemovesThePool(t *testing.T) {
	factory := &trackingFactory{}
	cvd := testCVD(t)

	p1 := ForToken("tok-c", testCfg(), factory.new, cvd, 1)
	Forget("tok-c")

	p2 := ForToken("tok-c", testCfg(), factory.new, cvd, 1)
	assert.NotSame(t, p1, p2)
	Forget("tok-c")
}
