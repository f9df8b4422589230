package zatca

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy backoff exponencial acotado con jitter completo para errores de transporte.
type RetryPolicy struct {
	MaxAttempts int           // Intentos totales (>= 1)
	BaseDelay   time.Duration // Espera antes del segundo intento
	MaxDelay    time.Duration // Tope de cada espera (<= 0 usa el tope por defecto)

	// Jitter recibe el tope calculado y devuelve la espera real. nil = uniforme en [0, tope].
	Jitter func(time.Duration) time.Duration
}

const defaultMaxDelay = 8 * time.Second

// DefaultRetryPolicy 4 intentos, 500 ms base, 8 s de tope.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: defaultMaxDelay}
}

// Backoff devuelve la espera después del intento fallido número attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = defaultMaxDelay
	}
	d := min(p.BaseDelay, ceiling)
	// Se deja de duplicar al llegar al tope, antes de desbordar time.Duration.
	for i := 1; i < attempt && d < ceiling; i++ {
		if d > ceiling/2 {
			d = ceiling
			break
		}
		d *= 2
	}
	if p.Jitter != nil {
		return p.Jitter(d)
	}
	n := int64(d)
	if n < math.MaxInt64 {
		n++
	}
	return time.Duration(rand.Int63n(n))
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// sleepCtx espera d o hasta que el contexto se cancele.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
