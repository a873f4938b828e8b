package obslog

import (
	"testing"

	"go.uber.org/zap"
)

func TestZap_ImplementsBreakerLogger(t *testing.T) {
	z := NewZap(zap.NewNop())
	z.Info("hello", "k", "v")
	z.Warn("careful", "k", "v")
	z.Error("bad", "k", "v")
}

func TestNewZap_NilBuildsUsableLogger(t *testing.T) {
	z := NewZap(nil)
	z.Info("hello")
}
