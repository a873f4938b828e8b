// Package obslog adapts go.uber.org/zap to the small logging seams used
// across this runtime (breaker.Logger and anything else that only needs
// Info/Warn/Error with key-value fields), so every component logs through
// one structured backend instead of each inventing its own.
package obslog

import (
	"go.uber.org/zap"

	"github.com/1mb-dev/resiliencekit/internal/breaker"
)

// Zap adapts a *zap.SugaredLogger to breaker.Logger.
type Zap struct {
	l *zap.SugaredLogger
}

// NewZap wraps l. Passing a nil *zap.Logger builds a production logger via
// zap.NewProduction, falling back to a no-op logger if that construction
// itself fails (stdout/stderr unavailable, e.g. in a restricted sandbox).
func NewZap(l *zap.Logger) *Zap {
	if l == nil {
		built, err := zap.NewProduction()
		if err != nil {
			built = zap.NewNop()
		}
		l = built
	}
	return &Zap{l: l.Sugar()}
}

func (z *Zap) Info(msg string, fields ...any)  { z.l.Infow(msg, fields...) }
func (z *Zap) Warn(msg string, fields ...any)  { z.l.Warnw(msg, fields...) }
func (z *Zap) Error(msg string, fields ...any) { z.l.Errorw(msg, fields...) }

var _ breaker.Logger = (*Zap)(nil)
