package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info{CommitHash: "0123456789abcdef", BuildTime: "2026-03-02T09:00:00Z", Version: "v0.3.0"}

	assert.Equal(t, "0123456", info.Short())
	assert.Equal(t, "blogpulse v0.3.0 (commit 0123456, built 2026-03-02T09:00:00Z)", info.String())
	assert.Equal(t, "blogpulse/v0.3.0 (+0123456)", info.UserAgent())

	dev := Info{CommitHash: "dev", Version: "dev", BuildTime: "unknown"}
	assert.Equal(t, "dev", dev.Short())
	assert.Equal(t, "blogpulse dev (commit dev, built unknown)", dev.String())
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}
